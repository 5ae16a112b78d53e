package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]int64
	fail    map[int64]bool
	err     error
}

func (f *fakeWriter) WriteBatch(_ context.Context, recipes []domain.Recipe) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all, ok []int64
	for _, r := range recipes {
		all = append(all, r.ID)
		if !f.fail[r.ID] {
			ok = append(ok, r.ID)
		}
	}
	f.batches = append(f.batches, all)
	if f.err != nil {
		return nil, f.err
	}
	return ok, nil
}

func (f *fakeWriter) Batches() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int64(nil), f.batches...)
}

type countingTask struct{}

func (countingTask) Wait(context.Context) error { return nil }

// countingBackends counts per-recipe writes on both indexes.
type countingBackends struct {
	mu      sync.Mutex
	lexical map[int64]int
	vector  map[int64]int
}

func newCountingBackends() *countingBackends {
	return &countingBackends{lexical: make(map[int64]int), vector: make(map[int64]int)}
}

func (c *countingBackends) AddOrUpdate(_ context.Context, recipes []domain.Recipe) (domain.IndexTask, error) {
	time.Sleep(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range recipes {
		c.lexical[r.ID]++
	}
	return countingTask{}, nil
}

func (c *countingBackends) Upsert(_ context.Context, p domain.VectorPoint) error {
	time.Sleep(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vector[p.ID]++
	return nil
}

func recipes(n int) []domain.Recipe {
	out := make([]domain.Recipe, n)
	for i := range out {
		v := make([]float32, domain.VectorDim)
		v[i%domain.VectorDim] = 1
		out[i] = domain.Recipe{ID: int64(i + 1), Name: "r", Embedding: v}
	}
	return out
}
