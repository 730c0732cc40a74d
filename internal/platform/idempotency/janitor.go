package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maxSweepRounds caps how many full batches one tick may drain.
const maxSweepRounds = 10

// RunJanitor sweeps expired keys on every tick until ctx ends. A tick keeps
// draining while the store returns full batches.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, batch int, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			removed, err := sweep(ctx, store, tick.UTC(), batch)
			if err != nil {
				logger.Warn("idempotency sweep failed", zap.Int("removed", removed), zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency sweep", zap.Int("removed", removed))
			}
		}
	}
}

func sweep(ctx context.Context, store Store, now time.Time, batch int) (int, error) {
	total := 0
	for round := 0; round < maxSweepRounds; round++ {
		removed, err := store.CleanupExpired(ctx, now, batch)
		total += removed
		if err != nil {
			return total, err
		}
		if batch <= 0 || removed < batch || ctx.Err() != nil {
			break
		}
	}
	return total, nil
}
