package listener

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backoff controls restart delays of a supervised run.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff starts at half a second and caps at thirty.
var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2}

func (b Backoff) next(cur time.Duration) time.Duration {
	n := time.Duration(float64(cur) * b.Multiplier)
	if n <= cur {
		n = cur + b.Initial
	}
	if n > b.Max {
		n = b.Max
	}
	return n
}

// Supervise re-runs run until ctx is cancelled, sleeping with exponential backoff after each failure.
// A run that lasted longer than b.Max resets the delay.
func Supervise(ctx context.Context, run func(ctx context.Context) error, b Backoff, logger *zap.Logger) error {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultBackoff.Multiplier
	}

	delay := b.Initial
	for {
		started := time.Now()
		err := run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > b.Max {
			delay = b.Initial
		}

		logger.Warn("listener stopped, restarting",
			zap.Error(err), zap.Duration("backoff", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		delay = b.next(delay)
	}
}
