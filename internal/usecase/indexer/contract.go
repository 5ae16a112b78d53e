package indexer

import (
	"context"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// Gateway is the row-locking slice of the recipe store.
type Gateway interface {
	GetForUpdate(ctx context.Context, id int64) (*domain.Recipe, domain.Tx, error)
	SetBatchSearchable(ctx context.Context, tx domain.Tx, ids []int64) ([]int64, error)
}

// LexicalIndex accepts recipe writes as asynchronous tasks.
type LexicalIndex interface {
	AddOrUpdate(ctx context.Context, recipes []domain.Recipe) (domain.IndexTask, error)
}

// VectorIndex stores recipe embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, p domain.VectorPoint) error
}
