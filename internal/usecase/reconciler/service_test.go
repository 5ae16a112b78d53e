package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/repository/recipe/recipetest"
	"github.com/kailas-cloud/cookbook/internal/usecase/indexer"
)

func TestRunOnce_IndexesBatchInIDOrder(t *testing.T) {
	store := recipetest.NewStore(recipes(5)...)
	w := &fakeWriter{}

	n, err := New(store, w, zap.NewNop()).WithBatchSize(3).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]int64{{1, 2, 3}}, w.Batches())
	assert.Equal(t, []int64{4, 5}, store.Pending())
}

func TestRunOnce_Empty(t *testing.T) {
	store := recipetest.NewStore()
	w := &fakeWriter{}

	n, err := New(store, w, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.Batches())
	assert.Equal(t, 1, store.Commits())
}

func TestRunOnce_PartialFailureLeavesFailedDirty(t *testing.T) {
	store := recipetest.NewStore(recipes(3)...)
	w := &fakeWriter{fail: map[int64]bool{2: true}}

	n, err := New(store, w, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{2}, store.Pending())
}

func TestRunOnce_FailingRowsDoNotStarveBacklog(t *testing.T) {
	store := recipetest.NewStore(recipes(4)...)
	w := &fakeWriter{fail: map[int64]bool{1: true, 2: true}}
	svc := New(store, w, zap.NewNop()).WithBatchSize(2)

	n, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.Attempts(1))
	assert.Equal(t, 1, store.Attempts(2))

	n, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}}, w.Batches())
	assert.Equal(t, []int64{1, 2}, store.Pending())
	assert.Zero(t, store.Attempts(3))
}

func TestRunOnce_WriterErrorRollsBack(t *testing.T) {
	store := recipetest.NewStore(recipes(3)...)
	w := &fakeWriter{err: errors.New("lexical down")}

	n, err := New(store, w, zap.NewNop()).RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []int64{1, 2, 3}, store.Pending())
	assert.Equal(t, 1, store.Rollbacks())
}

func TestRunOnce_LockError(t *testing.T) {
	store := recipetest.NewStore(recipes(1)...)
	store.BeginErr = errors.New("too many connections")

	_, err := New(store, &fakeWriter{}, zap.NewNop()).RunOnce(context.Background())
	var pe *domain.PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestDrain(t *testing.T) {
	store := recipetest.NewStore(recipes(7)...)
	w := &fakeWriter{}

	n, err := New(store, w, zap.NewNop()).WithBatchSize(3).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Len(t, w.Batches(), 3)
	assert.Empty(t, store.Pending())
}

func TestDrain_StopsWithoutProgress(t *testing.T) {
	store := recipetest.NewStore(recipes(2)...)
	w := &fakeWriter{fail: map[int64]bool{1: true, 2: true}}

	n, err := New(store, w, zap.NewNop()).WithBatchSize(2).Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, w.Batches(), 1)
}

func TestRun_ConvergesAndStops(t *testing.T) {
	store := recipetest.NewStore(recipes(10)...)
	w := &fakeWriter{}
	svc := New(store, w, zap.NewNop()).WithBatchSize(4).WithInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return len(store.Pending()) == 0 }, 2*time.Second, time.Millisecond)

	// A recipe that missed its event is picked up by a later sweep.
	store.Put(domain.Recipe{ID: 11, Name: "late"})
	require.Eventually(t, func() bool { return len(store.Pending()) == 0 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_BacksOffAfterError(t *testing.T) {
	store := recipetest.NewStore(recipes(1)...)
	w := &fakeWriter{err: errors.New("vector down")}
	svc := New(store, w, zap.NewNop()).WithInterval(time.Millisecond).WithErrorBackoff(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return len(w.Batches()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, w.Batches(), 1)

	cancel()
	require.NoError(t, <-done)
}

func TestListenerAndReconciler_WriteEachRecipeOnce(t *testing.T) {
	const n = 40
	store := recipetest.NewStore(recipes(n)...)
	backends := newCountingBackends()
	writer := indexer.New(store, backends, backends, zap.NewNop()).WithRetry(1, 0)
	rec := New(store, writer, zap.NewNop()).WithBatchSize(5)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for id := int64(1); id <= n; id++ {
			assert.NoError(t, writer.Index(context.Background(), id))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := rec.RunOnce(context.Background())
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Empty(t, store.Pending())
	backends.mu.Lock()
	defer backends.mu.Unlock()
	for id := int64(1); id <= n; id++ {
		assert.Equal(t, 1, backends.vector[id], "vector writes for %d", id)
		assert.Equal(t, 1, backends.lexical[id], "lexical writes for %d", id)
	}
}
