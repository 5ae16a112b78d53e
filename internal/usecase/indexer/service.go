// Package indexer writes recipes to the lexical and vector indexes and marks them
// searchable only after both writes succeed, inside the transaction holding the row lock.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/metrics"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultAttempts    = 3
	defaultRetryDelay  = 200 * time.Millisecond
	defaultConcurrency = 8
)

// Service is the index writer.
type Service struct {
	repo    Gateway
	lexical LexicalIndex
	vector  VectorIndex
	logger  *zap.Logger

	timeout     time.Duration
	attempts    int
	retryDelay  time.Duration
	concurrency int
}

// New creates an index writer.
func New(repo Gateway, lexical LexicalIndex, vector VectorIndex, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		lexical:     lexical,
		vector:      vector,
		logger:      logger,
		timeout:     defaultTimeout,
		attempts:    defaultAttempts,
		retryDelay:  defaultRetryDelay,
		concurrency: defaultConcurrency,
	}
}

// WithTimeout sets the deadline of each backend call.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithRetry sets how many times a backend call is tried and the first retry delay.
func (s *Service) WithRetry(attempts int, delay time.Duration) *Service {
	if attempts > 0 {
		s.attempts = attempts
	}
	if delay >= 0 {
		s.retryDelay = delay
	}
	return s
}

// WithVectorConcurrency bounds parallel vector upserts in WriteBatch.
func (s *Service) WithVectorConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Index writes one recipe to both indexes and flips it searchable.
// A missing or already indexed recipe is a successful no-op.
func (s *Service) Index(ctx context.Context, id int64) error {
	log := s.logger.With(zap.Int64("recipe_id", id))

	rec, tx, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		metrics.IndexOpsTotal.WithLabelValues("single", "failed").Inc()
		return fmt.Errorf("lock recipe %d: %w", id, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if rec == nil {
		log.Debug("recipe gone, nothing to index")
		metrics.IndexOpsTotal.WithLabelValues("single", "skipped").Inc()
		return nil
	}
	if rec.Indexed {
		log.Debug("recipe already indexed")
		metrics.IndexOpsTotal.WithLabelValues("single", "skipped").Inc()
		return nil
	}

	if rec.HasEmbedding() {
		if err := s.upsertVector(ctx, rec); err != nil {
			metrics.IndexOpsTotal.WithLabelValues("single", "failed").Inc()
			return err
		}
	}
	if err := s.writeLexical(ctx, []domain.Recipe{*rec}); err != nil {
		metrics.IndexOpsTotal.WithLabelValues("single", "failed").Inc()
		return err
	}

	committed = true
	if _, err := s.repo.SetBatchSearchable(ctx, tx, []int64{id}); err != nil {
		metrics.IndexOpsTotal.WithLabelValues("single", "failed").Inc()
		return fmt.Errorf("mark recipe %d searchable: %w", id, err)
	}

	metrics.IndexOpsTotal.WithLabelValues("single", "indexed").Inc()
	log.Debug("recipe indexed")
	return nil
}

// WriteBatch writes recipes to both indexes and returns the ids that reached both.
// A vector failure drops only that recipe; a lexical failure fails the batch.
func (s *Service) WriteBatch(ctx context.Context, recipes []domain.Recipe) ([]int64, error) {
	if len(recipes) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		failed = make(map[int64]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range recipes {
		rec := &recipes[i]
		if !rec.HasEmbedding() {
			continue
		}
		g.Go(func() error {
			if err := s.upsertVector(gctx, rec); err != nil {
				mu.Lock()
				failed[rec.ID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	ok := make([]domain.Recipe, 0, len(recipes))
	for i := range recipes {
		if err, bad := failed[recipes[i].ID]; bad {
			s.logger.Warn("vector upsert failed, recipe left for next sweep",
				zap.Int64("recipe_id", recipes[i].ID), zap.Error(err))
			metrics.IndexOpsTotal.WithLabelValues("batch", "failed").Inc()
			continue
		}
		ok = append(ok, recipes[i])
	}
	if len(ok) == 0 {
		return nil, nil
	}

	if err := s.writeLexical(ctx, ok); err != nil {
		metrics.IndexOpsTotal.WithLabelValues("batch", "failed").Add(float64(len(ok)))
		return nil, err
	}

	ids := make([]int64, len(ok))
	for i := range ok {
		ids[i] = ok[i].ID
	}
	metrics.IndexOpsTotal.WithLabelValues("batch", "indexed").Add(float64(len(ids)))
	return ids, nil
}

func (s *Service) upsertVector(ctx context.Context, rec *domain.Recipe) error {
	start := time.Now()
	err := s.attempt(ctx, func(ctx context.Context) error {
		return s.vector.Upsert(ctx, domain.PointFromRecipe(rec))
	})
	observeWrite(domain.BackendVector, start, err)
	if err != nil {
		return &domain.TransportError{Backend: domain.BackendVector, Op: fmt.Sprintf("upsert %d", rec.ID), Err: err}
	}
	return nil
}

func (s *Service) writeLexical(ctx context.Context, recipes []domain.Recipe) error {
	start := time.Now()
	err := s.attempt(ctx, func(ctx context.Context) error {
		task, err := s.lexical.AddOrUpdate(ctx, recipes)
		if err != nil {
			return err
		}
		return task.Wait(ctx)
	})
	observeWrite(domain.BackendLexical, start, err)
	if err != nil {
		return &domain.TransportError{Backend: domain.BackendLexical, Op: fmt.Sprintf("add %d recipes", len(recipes)), Err: err}
	}
	return nil
}

func observeWrite(backend string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BackendWriteDuration.WithLabelValues(backend, status).Observe(time.Since(start).Seconds())
}
