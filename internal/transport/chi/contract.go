package chi

import (
	"context"

	"github.com/kailas-cloud/cookbook/internal/domain"
	healthuc "github.com/kailas-cloud/cookbook/internal/usecase/health"
	recipeuc "github.com/kailas-cloud/cookbook/internal/usecase/recipe"
)

// RecipeService is the write path and catalog listing.
type RecipeService interface {
	Get(ctx context.Context, id int64) (domain.Recipe, error)
	List(ctx context.Context, page, pageSize int) (recipeuc.Page, error)
	Create(ctx context.Context, rec *domain.Recipe) (int64, error)
	Update(ctx context.Context, rec *domain.Recipe) error
	Delete(ctx context.Context, id int64) error
	Reindex(ctx context.Context, id *int64) (int64, error)
	Pending(ctx context.Context) (int, error)
}

// SearchService returns recipes for a query, best match first.
type SearchService interface {
	Search(ctx context.Context, query string, embedding []float32) ([]domain.Recipe, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
