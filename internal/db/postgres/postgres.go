// Package postgres owns the PostgreSQL connection pool and change notification subscriptions.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Config holds connection parameters.
type Config struct {
	DSN      string
	MaxConns int32
}

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New parses the DSN and opens a lazily connecting pool.
func New(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Pool exposes the underlying pool to repositories.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (d *DB) Close() {
	d.pool.Close()
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (d *DB) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for postgres: %w", ctx.Err())
		case <-ticker.C:
			if err := d.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Listen dedicates one pooled connection to LISTEN on channel.
// The connection is returned to the pool by Subscription.Close.
func (d *DB) Listen(ctx context.Context, channel string) (*Subscription, error) {
	if channel == "" {
		return nil, errors.New("channel is required")
	}

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	return &Subscription{conn: conn, channel: channel}, nil
}

// Subscription delivers NOTIFY payloads for one channel in delivery order.
type Subscription struct {
	conn    *pgxpool.Conn
	channel string
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string { return s.channel }

// Receive blocks until the next notification or ctx is done.
func (s *Subscription) Receive(ctx context.Context) (string, error) {
	n, err := s.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", fmt.Errorf("wait for notification: %w", err)
	}
	return n.Payload, nil
}

// Close unsubscribes and releases the connection. A connection broken mid-wait
// is destroyed instead of being returned to the pool.
func (s *Subscription) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.conn.Exec(ctx, "UNLISTEN *"); err != nil {
		_ = s.conn.Conn().Close(ctx)
	}
	s.conn.Release()
}

// Notify sends payload on channel through any executor (pool or transaction).
func Notify(ctx context.Context, exec Executor, channel, payload string) error {
	if _, err := exec.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		return fmt.Errorf("notify %s: %w", channel, err)
	}
	return nil
}
