package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

var _ Pool = (*pgxpool.Pool)(nil)

func TestNew_EmptyDSN(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestNew_BadDSN(t *testing.T) {
	_, err := New(context.Background(), Config{DSN: "postgres://%zz"})
	require.Error(t, err)
}

func TestSchemaEmbedded(t *testing.T) {
	require.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS recipes")
	require.Contains(t, schemaSQL, "WHERE NOT indexed")
}

// testDB connects to COOKBOOK_TEST_DATABASE_URL or skips.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("COOKBOOK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COOKBOOK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := New(ctx, Config{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.WaitForReady(ctx, 5*time.Second))
	return d
}

func TestListenNotify(t *testing.T) {
	d := testDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channel := "cookbook_test_" + strings.ReplaceAll(t.Name(), "/", "_")
	sub, err := d.Listen(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, Notify(ctx, d.Pool(), channel, "42"))
	require.NoError(t, Notify(ctx, d.Pool(), channel, "43"))

	first, err := sub.Receive(ctx)
	require.NoError(t, err)
	second, err := sub.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"42", "43"}, []string{first, second})
}

func TestReceive_ContextCancel(t *testing.T) {
	d := testDB(t)
	sub, err := d.Listen(context.Background(), "cookbook_test_cancel")
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Receive(ctx)
	require.Error(t, err)
}
