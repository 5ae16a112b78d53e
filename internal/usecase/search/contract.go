package search

import (
	"context"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// LexicalIndex answers full-text queries with scores normalised to [0,1].
type LexicalIndex interface {
	Search(ctx context.Context, query string, limit int) ([]domain.LexicalHit, error)
}

// VectorIndex answers nearest-neighbour queries by cosine similarity.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, limit int, minScore float64) ([]domain.VectorHit, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
