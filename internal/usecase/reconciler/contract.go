package reconciler

import (
	"context"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// Gateway locks batches of unindexed recipes.
type Gateway interface {
	GetBatchForIndex(ctx context.Context, n int) ([]domain.Recipe, domain.Tx, error)
	DeferBatch(ctx context.Context, tx domain.Tx, ids []int64) error
	SetBatchSearchable(ctx context.Context, tx domain.Tx, ids []int64) ([]int64, error)
}

// Writer writes a batch to both indexes and returns the ids that reached both.
type Writer interface {
	WriteBatch(ctx context.Context, recipes []domain.Recipe) ([]int64, error)
}
