package domain

import "context"

// Tx is an open primary-store transaction holding row locks for the indexing pipeline.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
