// Package listener turns change notifications into index writes, one event at a time.
package listener

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/metrics"
)

// Listener consumes one subscription.
type Listener struct {
	sub    Subscription
	idx    Indexer
	logger *zap.Logger
}

// New creates a listener over sub.
func New(sub Subscription, idx Indexer, logger *zap.Logger) *Listener {
	return &Listener{sub: sub, idx: idx, logger: logger.With(zap.String("channel", sub.Channel()))}
}

// Run processes events until ctx is cancelled (nil) or the subscription fails (error).
// Malformed payloads and index failures are logged and skipped.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("listening for change events")
	for {
		payload, err := l.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &domain.PersistenceError{Op: "receive notification", Err: err}
		}
		l.handle(ctx, payload)
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	id, err := decode(payload)
	if err != nil {
		l.logger.Warn("dropping change event", zap.String("payload", payload), zap.Error(err))
		metrics.ChangeEventsTotal.WithLabelValues("decode_error").Inc()
		return
	}

	if err := l.idx.Index(ctx, id); err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Error("index recipe", zap.Int64("recipe_id", id), zap.Error(err))
		metrics.ChangeEventsTotal.WithLabelValues("index_error").Inc()
		return
	}
	metrics.ChangeEventsTotal.WithLabelValues("indexed").Inc()
}

func decode(payload string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return 0, &domain.DecodeError{Payload: payload, Err: err}
	}
	return id, nil
}
