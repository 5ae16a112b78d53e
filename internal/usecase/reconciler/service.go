// Package reconciler sweeps recipes that missed their change event into the indexes.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/metrics"
)

const (
	defaultBatchSize    = 50
	defaultInterval     = 500 * time.Millisecond
	defaultErrorBackoff = 5 * time.Second
)

// Service is the backlog reconciler.
type Service struct {
	repo   Gateway
	writer Writer
	logger *zap.Logger

	batchSize    int
	interval     time.Duration
	errorBackoff time.Duration
}

// New creates a reconciler.
func New(repo Gateway, writer Writer, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		writer:       writer,
		logger:       logger,
		batchSize:    defaultBatchSize,
		interval:     defaultInterval,
		errorBackoff: defaultErrorBackoff,
	}
}

// WithBatchSize sets how many rows one cycle locks.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithInterval sets the pause between idle cycles.
func (s *Service) WithInterval(d time.Duration) *Service {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithErrorBackoff sets the pause after a failed cycle.
func (s *Service) WithErrorBackoff(d time.Duration) *Service {
	if d > 0 {
		s.errorBackoff = d
	}
	return s
}

// RunOnce indexes one batch and returns how many recipes were committed searchable.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	_, n, err := s.cycle(ctx)
	return n, err
}

// Drain runs cycles until the backlog is empty or a cycle makes no progress.
func (s *Service) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		fetched, n, err := s.cycle(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if fetched < s.batchSize || n == 0 {
			return total, nil
		}
	}
}

// Run loops until ctx is cancelled. Errors are logged and followed by the error backoff;
// a full batch is followed immediately by another cycle.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("reconciler started",
		zap.Int("batch_size", s.batchSize), zap.Duration("interval", s.interval))

	for {
		wait := s.interval
		fetched, n, err := s.cycle(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.logger.Error("reconcile cycle failed", zap.Error(err))
			wait = s.errorBackoff
		case n > 0:
			s.logger.Info("reconciled recipes", zap.Int("count", n), zap.Int("batch_size", fetched))
			if fetched == s.batchSize {
				wait = 0
			}
		}

		if wait == 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) (fetched, committed int, err error) {
	recipes, tx, err := s.repo.GetBatchForIndex(ctx, s.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("lock backlog: %w", err)
	}
	if len(recipes) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return 0, 0, fmt.Errorf("commit empty sweep: %w", err)
		}
		return 0, 0, nil
	}

	ids, err := s.writer.WriteBatch(ctx, recipes)
	if err != nil {
		_ = tx.Rollback(ctx)
		return len(recipes), 0, fmt.Errorf("write batch of %d: %w", len(recipes), err)
	}

	// Rows that missed an index move behind the rest of the backlog.
	if failed := missing(recipes, ids); len(failed) > 0 {
		if err := s.repo.DeferBatch(ctx, tx, failed); err != nil {
			_ = tx.Rollback(ctx)
			return len(recipes), 0, fmt.Errorf("defer %d failed recipes: %w", len(failed), err)
		}
		s.logger.Warn("recipes left dirty", zap.Int64s("recipe_ids", failed))
	}

	updated, err := s.repo.SetBatchSearchable(ctx, tx, ids)
	if err != nil {
		return len(recipes), 0, fmt.Errorf("mark batch searchable: %w", err)
	}
	metrics.ReconcileBatchSize.Observe(float64(len(updated)))
	return len(recipes), len(updated), nil
}

func missing(recipes []domain.Recipe, written []int64) []int64 {
	ok := make(map[int64]bool, len(written))
	for _, id := range written {
		ok[id] = true
	}
	var out []int64
	for i := range recipes {
		if !ok[recipes[i].ID] {
			out = append(out, recipes[i].ID)
		}
	}
	return out
}
