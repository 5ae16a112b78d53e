// Package embedding decorates the embedding provider with logging and a concurrency cap.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/logger"
)

// InstrumentedEmbedder logs every provider call and bounds how many run at once.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. maxInFlight <= 0 leaves calls unbounded.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, maxInFlight int, logger *zap.Logger,
) *InstrumentedEmbedder {
	e := &InstrumentedEmbedder{inner: inner, provider: provider, model: model, logger: logger}
	if maxInFlight > 0 {
		e.sem = semaphore.NewWeighted(int64(maxInFlight))
	}
	return e
}

// Embed waits for a slot, delegates to the inner embedder and logs the outcome.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	log := logger.FromContextOr(ctx, p.logger).With(zap.String("provider", p.provider), zap.String("model", p.model))

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("wait for embedding slot: %w", err)
		}
		defer p.sem.Release(1)
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		log.Error("embedding request failed", zap.Duration("duration", duration), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	log.Debug("embedding request completed",
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}
