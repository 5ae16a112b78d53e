// Package search ranks recipes by fusing lexical relevance with vector similarity.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/metrics"
)

const (
	defaultVectorLimit    = 10
	defaultVectorMinScore = 0.25
	defaultLexicalLimit   = 20
	defaultTimeout        = 10 * time.Second
)

// Service is the hybrid query planner.
type Service struct {
	lexical LexicalIndex
	vector  VectorIndex
	embed   Embedder
	logger  *zap.Logger

	vectorLimit    int
	vectorMinScore float64
	lexicalLimit   int
	timeout        time.Duration
}

// New creates a search service.
func New(lexical LexicalIndex, vector VectorIndex, logger *zap.Logger) *Service {
	return &Service{
		lexical:        lexical,
		vector:         vector,
		logger:         logger,
		vectorLimit:    defaultVectorLimit,
		vectorMinScore: defaultVectorMinScore,
		lexicalLimit:   defaultLexicalLimit,
		timeout:        defaultTimeout,
	}
}

// WithQueryEmbedder embeds query text when the caller supplies no vector.
func (s *Service) WithQueryEmbedder(e Embedder) *Service {
	s.embed = e
	return s
}

// WithLimits overrides the per-backend limits. Non-positive values keep the defaults.
func (s *Service) WithLimits(vectorLimit int, vectorMinScore float64, lexicalLimit int) *Service {
	if vectorLimit > 0 {
		s.vectorLimit = vectorLimit
	}
	if vectorMinScore > 0 {
		s.vectorMinScore = vectorMinScore
	}
	if lexicalLimit > 0 {
		s.lexicalLimit = lexicalLimit
	}
	return s
}

// WithTimeout bounds one search.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Search returns recipes ordered by fused score.
func (s *Service) Search(ctx context.Context, query string, embedding []float32) ([]domain.Recipe, error) {
	ranked, err := s.Rank(ctx, query, embedding)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recipe, len(ranked))
	for i := range ranked {
		out[i] = ranked[i].Recipe
	}
	return out, nil
}

// Rank queries both indexes concurrently and fuses the hits.
// Either backend failing fails the search with a TransportError.
func (s *Service) Rank(ctx context.Context, query string, embedding []float32) (res []domain.FusedResult, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.SearchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	if len(embedding) > 0 {
		if err := domain.ValidateVector(embedding); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if len(embedding) == 0 {
		embedding, err = s.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	var (
		lexHits []domain.LexicalHit
		vecHits []domain.VectorHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.lexical.Search(gctx, query, s.lexicalLimit)
		if err != nil {
			return &domain.TransportError{Backend: domain.BackendLexical, Op: "search", Err: err}
		}
		lexHits = hits
		return nil
	})
	if len(embedding) > 0 {
		g.Go(func() error {
			hits, err := s.vector.Query(gctx, embedding, s.vectorLimit, s.vectorMinScore)
			if err != nil {
				return &domain.TransportError{Backend: domain.BackendVector, Op: "query", Err: err}
			}
			vecHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("search backends answered",
		zap.Int("lexical_hits", len(lexHits)), zap.Int("vector_hits", len(vecHits)))
	return fuse(lexHits, vecHits), nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embed == nil || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, &domain.TransportError{Backend: domain.BackendEmbedding, Op: "embed query", Err: err}
	}
	domain.UsageFromContext(ctx).Record(res)
	if err := domain.ValidateVector(res.Embedding); err != nil {
		return nil, &domain.TransportError{Backend: domain.BackendEmbedding, Op: "embed query", Err: err}
	}
	return res.Embedding, nil
}
