package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// attempt runs fn with a fresh per-call deadline, retrying with doubling delay.
// Dimension mismatches and a cancelled parent context are not retried.
func (s *Service) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := s.retryDelay
	var err error
	for i := 0; i < s.attempts; i++ {
		if i > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrVectorDimMismatch) || errors.Is(err, domain.ErrInvalidVector) || ctx.Err() != nil {
			return err
		}
	}
	return err
}
