package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
	"github.com/kailas-cloud/cookbook/internal/repository/recipe/recipetest"
)

type fakeTask struct{ err error }

func (t fakeTask) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.err
}

type fakeLexical struct {
	mu      sync.Mutex
	docs    map[int64]domain.Recipe
	calls   int
	addErr  error
	taskErr error
}

func newFakeLexical() *fakeLexical {
	return &fakeLexical{docs: make(map[int64]domain.Recipe)}
}

func (f *fakeLexical) AddOrUpdate(_ context.Context, recipes []domain.Recipe) (domain.IndexTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.addErr != nil {
		return nil, f.addErr
	}
	if f.taskErr != nil {
		return fakeTask{err: f.taskErr}, nil
	}
	for _, r := range recipes {
		f.docs[r.ID] = r
	}
	return fakeTask{}, nil
}

func (f *fakeLexical) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLexical) Has(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[id]
	return ok
}

type fakeVector struct {
	mu        sync.Mutex
	points    map[int64]domain.VectorPoint
	calls     int
	failIDs   map[int64]error
	failFirst int
	hang      bool
	delay     time.Duration
}

func newFakeVector() *fakeVector {
	return &fakeVector{points: make(map[int64]domain.VectorPoint), failIDs: make(map[int64]error)}
}

func (f *fakeVector) Upsert(ctx context.Context, p domain.VectorPoint) error {
	f.mu.Lock()
	f.calls++
	hang, delay := f.hang, f.delay
	var err error
	if f.failFirst > 0 {
		f.failFirst--
		err = errTransient
	} else if e, ok := f.failIDs[p.ID]; ok {
		err = e
	}
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.points[p.ID] = p
	f.mu.Unlock()
	return nil
}

func (f *fakeVector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeVector) Has(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.points[id]
	return ok
}

type transientError struct{}

func (transientError) Error() string { return "connection refused" }

var errTransient error = transientError{}

func embedding() []float32 {
	v := make([]float32, domain.VectorDim)
	v[0] = 1
	return v
}

func recipe(id int64, withVector bool) domain.Recipe {
	r := domain.Recipe{ID: id, Name: "recipe", Description: "tasty"}
	if withVector {
		r.Embedding = embedding()
	}
	return r
}

func newService(store *recipetest.Store, lex *fakeLexical, vec *fakeVector) *Service {
	return New(store, lex, vec, zap.NewNop()).
		WithTimeout(50*time.Millisecond).
		WithRetry(1, 0)
}
