package idempotency

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore holds checkout keys for a single API instance. Expired entries
// linger until CleanupExpired or a new Reserve on the same key replaces them.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Record{}}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	pending := pendingRecord(key, fingerprint, now, ttl)
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, held := s.entries[id]; held && !current.expired(pending.CreatedAt) {
		return evaluate(current, fingerprint)
	}
	s.entries[id] = pending
	return Reservation{State: ReservationStateNew, Record: pending}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[id]
	if current.Fingerprint != "" && current.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.entries[id] = completedRecord(key, fingerprint, resp, current.CreatedAt, now.UTC(), positiveTTL(ttl))
	return nil
}

// Release forgets the key when fingerprint still owns it.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[id].Fingerprint == fingerprint {
		delete(s.entries, id)
	}
	return nil
}

// CleanupExpired removes up to limit expired keys, soonest-expired first.
// A non-positive limit removes all of them.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for id, record := range s.entries {
		if record.expired(now) {
			stale = append(stale, id)
		}
	}
	slices.SortFunc(stale, func(a, b string) int {
		return cmp.Compare(s.entries[a].ExpiresAt.UnixNano(), s.entries[b].ExpiresAt.UnixNano())
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	for _, id := range stale {
		delete(s.entries, id)
	}
	return len(stale), nil
}

// Len counts stored keys, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
