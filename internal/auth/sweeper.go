package auth

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper deletes expired sessions and one-time tokens. Expired rows are
// already rejected on read, so a missed sweep only costs disk.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, logger: logger, now: time.Now}
}

// WithClock replaces time.Now.
func (sw *Sweeper) WithClock(now func() time.Time) *Sweeper {
	sw.now = now
	return sw
}

// RunOnce performs a single sweep.
func (sw *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	res, err := sw.store.DeleteExpired(ctx, sw.now())
	if err != nil {
		return res, err
	}
	sw.logger.Info("expired auth rows swept",
		"sessions", res.Sessions,
		"reset_tokens", res.ResetTokens,
		"verification_tokens", res.VerificationTokens,
	)
	return res, nil
}

// Start sweeps on every tick until ctx is done.
func (sw *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := sw.RunOnce(ctx); err != nil {
					sw.logger.Error("auth sweep failed", "err", err)
				}
			}
		}
	}()
}
