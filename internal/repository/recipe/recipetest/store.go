// Package recipetest provides an in-memory recipe gateway with PostgreSQL-like row locks.
package recipetest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

type row struct {
	lock     chan struct{}
	rec      domain.Recipe
	attempts int
}

// Store keeps recipes in memory. GetForUpdate blocks on a locked row,
// GetBatchForIndex skips locked rows, and flips apply only on commit.
type Store struct {
	mu   sync.Mutex
	rows map[int64]*row

	commits   int
	rollbacks int

	// SetSearchableErr, when set, fails SetBatchSearchable and rolls the tx back.
	SetSearchableErr error
	// BeginErr, when set, fails every locking read.
	BeginErr error
}

// NewStore creates a store holding recipes.
func NewStore(recipes ...domain.Recipe) *Store {
	s := &Store{rows: make(map[int64]*row)}
	for i := range recipes {
		s.Put(recipes[i])
	}
	return s
}

// Put inserts or replaces a recipe.
func (s *Store) Put(rec domain.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[rec.ID]; ok {
		r.rec = rec
		r.attempts = 0
		return
	}
	s.rows[rec.ID] = &row{lock: make(chan struct{}, 1), rec: rec}
}

// Remove deletes a recipe without taking its lock.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

// Recipe returns a copy of the stored recipe.
func (s *Store) Recipe(id int64) (domain.Recipe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return domain.Recipe{}, false
	}
	return r.rec, true
}

// Attempts returns how many sweeps deferred the recipe.
func (s *Store) Attempts(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		return r.attempts
	}
	return 0
}

// Pending returns the ids of recipes not yet indexed, ascending.
func (s *Store) Pending() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, r := range s.rows {
		if !r.rec.Indexed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Rollbacks returns the number of rolled back transactions.
func (s *Store) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

// GetForUpdate waits for the row lock. A missing row yields nil and a live tx.
func (s *Store) GetForUpdate(ctx context.Context, id int64) (*domain.Recipe, domain.Tx, error) {
	if s.BeginErr != nil {
		return nil, nil, &domain.PersistenceError{Op: "begin", Err: s.BeginErr}
	}
	tx := &Tx{store: s}

	s.mu.Lock()
	r, ok := s.rows[id]
	s.mu.Unlock()
	if !ok {
		return nil, tx, nil
	}

	select {
	case r.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, &domain.PersistenceError{Op: "get for update", Err: ctx.Err()}
	}
	tx.locked = append(tx.locked, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rows[id]; !ok || cur != r {
		return nil, tx, nil
	}
	rec := r.rec
	return &rec, tx, nil
}

// GetBatchForIndex locks up to n unindexed rows ordered by attempts then id, skipping locked ones.
func (s *Store) GetBatchForIndex(_ context.Context, n int) ([]domain.Recipe, domain.Tx, error) {
	if s.BeginErr != nil {
		return nil, nil, &domain.PersistenceError{Op: "begin", Err: s.BeginErr}
	}
	tx := &Tx{store: s}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.rows[ids[i]], s.rows[ids[j]]
		if a.attempts != b.attempts {
			return a.attempts < b.attempts
		}
		return ids[i] < ids[j]
	})

	var out []domain.Recipe
	for _, id := range ids {
		if len(out) == n {
			break
		}
		r := s.rows[id]
		if r.rec.Indexed {
			continue
		}
		select {
		case r.lock <- struct{}{}:
		default:
			continue
		}
		tx.locked = append(tx.locked, r)
		out = append(out, r.rec)
	}
	return out, tx, nil
}

// DeferBatch stages an attempt bump for locked ids. Applied on commit.
func (s *Store) DeferBatch(_ context.Context, tx domain.Tx, ids []int64) error {
	t, ok := tx.(*Tx)
	if !ok {
		return &domain.PersistenceError{Op: "defer batch", Err: errors.New("foreign transaction")}
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range t.locked {
		if want[r.rec.ID] {
			t.deferred = append(t.deferred, r)
		}
	}
	return nil
}

// SetBatchSearchable stages the flip for locked ids and commits tx.
func (s *Store) SetBatchSearchable(ctx context.Context, tx domain.Tx, ids []int64) ([]int64, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, &domain.PersistenceError{Op: "set searchable", Err: errors.New("foreign transaction")}
	}
	if s.SetSearchableErr != nil {
		_ = t.Rollback(ctx)
		return nil, &domain.PersistenceError{Op: "set searchable", Err: s.SetSearchableErr}
	}

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var updated []int64
	s.mu.Lock()
	for _, r := range t.locked {
		if want[r.rec.ID] {
			t.flip = append(t.flip, r)
			updated = append(updated, r.rec.ID)
		}
	}
	s.mu.Unlock()
	if err := t.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// Tx is a transaction of Store.
type Tx struct {
	store  *Store
	locked   []*row
	flip     []*row
	deferred []*row
	done     bool
}

// Commit applies staged flips and releases the row locks.
func (t *Tx) Commit(context.Context) error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.done = true

	t.store.mu.Lock()
	for _, r := range t.flip {
		r.rec.Indexed = true
		r.attempts = 0
	}
	for _, r := range t.deferred {
		r.attempts++
	}
	t.store.commits++
	t.store.mu.Unlock()

	t.release()
	return nil
}

// Rollback discards staged flips and releases the row locks.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()

	t.release()
	return nil
}

func (t *Tx) release() {
	for _, r := range t.locked {
		<-r.lock
	}
	t.locked = nil
}
