package listener

import "context"

// Subscription delivers change notification payloads in order.
type Subscription interface {
	Receive(ctx context.Context) (string, error)
	Channel() string
}

// Indexer writes one recipe to both indexes.
type Indexer interface {
	Index(ctx context.Context, id int64) error
}
