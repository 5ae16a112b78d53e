package recipe

import (
	"context"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// Repository defines the primary store contract for recipe CRUD.
type Repository interface {
	Get(ctx context.Context, id int64) (domain.Recipe, error)
	List(ctx context.Context, offset, limit int) ([]domain.Recipe, int, error)
	Create(ctx context.Context, rec *domain.Recipe) (int64, error)
	Update(ctx context.Context, rec *domain.Recipe) error
	Delete(ctx context.Context, id int64) error
	MarkDirty(ctx context.Context, id *int64) (int64, error)
	PendingCount(ctx context.Context) (int, error)
}

// IndexRemover removes a recipe from a secondary index.
type IndexRemover interface {
	Delete(ctx context.Context, id int64) error
}

// Embedder vectorizes recipe text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
