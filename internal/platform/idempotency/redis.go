package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idem:"

// RedisOption customises RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

// RedisStore shares idempotency state between API instances. Expiry is left
// to Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + recordID(key)
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ttl = positiveTTL(ttl)
	pending := pendingRecord(key, fingerprint, now, ttl)
	payload, err := json.Marshal(pending)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	rk := s.redisKey(key)
	// A key can expire between SETNX and GET, so try twice.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, rk, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: pending}, nil
		}
		existing, found, err := load(ctx, s.client, rk)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return evaluate(existing, fingerprint)
		}
	}
	return Reservation{}, errors.New("idempotency: reservation raced with expiry")
}

func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now, ttl = now.UTC(), positiveTTL(ttl)
	rk := s.redisKey(key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, found, err := load(ctx, tx, rk)
		if err != nil {
			return err
		}
		if found && existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		payload, err := json.Marshal(completedRecord(key, fingerprint, resp, existing.CreatedAt, now, ttl))
		if err != nil {
			return fmt.Errorf("idempotency: encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, payload, ttl)
			return nil
		})
		return err
	}, rk)
	if err != nil && !errors.Is(err, ErrFingerprintMismatch) {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return err
}

// Release deletes the key only while it still belongs to fingerprint.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	rk := s.redisKey(key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, found, err := load(ctx, tx, rk)
		if err != nil || !found || existing.Fingerprint != fingerprint {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rk)
			return nil
		})
		return err
	}, rk)
	if err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

// CleanupExpired is a no-op; Redis evicts keys when their TTL lapses.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func load(ctx context.Context, client stringGetter, rk string) (Record, bool, error) {
	raw, err := client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}
