package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

type payload struct {
	name        string
	description string
}

// Memory is an in-process vector index over a coder/hnsw graph.
// Replaced or deleted points are orphaned in the graph and filtered out on query.
type Memory struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	keys    map[int64]uint64
	ids     map[uint64]int64
	payload map[int64]payload
	nextKey uint64
}

// NewMemory creates an empty in-process index. Zero m or efSearch keeps the library defaults.
func NewMemory(m, efSearch int) *Memory {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	if m > 0 {
		g.M = m
	}
	if efSearch > 0 {
		g.EfSearch = efSearch
	}
	g.Ml = 0.25

	return &Memory{
		graph:   g,
		keys:    make(map[int64]uint64),
		ids:     make(map[uint64]int64),
		payload: make(map[int64]payload),
	}
}

// EnsureCollection is a no-op; the graph exists from construction.
func (m *Memory) EnsureCollection(context.Context) error { return nil }

// Upsert adds the point, orphaning any previous vector for the same id.
func (m *Memory) Upsert(_ context.Context, p domain.VectorPoint) error {
	if err := domain.ValidateVector(p.Vector); err != nil {
		return fmt.Errorf("upsert %d: %w", p.ID, err)
	}

	vec := normalize(p.Vector)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.keys[p.ID]; ok {
		delete(m.ids, old)
	}
	key := m.nextKey
	m.nextKey++

	m.graph.Add(hnsw.MakeNode(key, vec))
	m.keys[p.ID] = key
	m.ids[key] = p.ID
	m.payload[p.ID] = payload{name: p.Name, description: p.Description}
	return nil
}

// Query returns at most limit hits with similarity >= minScore, best first.
func (m *Memory) Query(_ context.Context, vector []float32, limit int, minScore float64) ([]domain.VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := domain.ValidateVector(vector); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	q := normalize(vector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.graph.Len()
	if total == 0 {
		return nil, nil
	}
	// Orphans take slots in the graph result, so ask for enough to cover them.
	k := limit + total - len(m.ids)
	if k > total {
		k = total
	}

	nodes := m.graph.Search(q, k)
	hits := make([]domain.VectorHit, 0, limit)
	for _, n := range nodes {
		id, ok := m.ids[n.Key]
		if !ok {
			continue
		}
		score := 1 - float64(hnsw.CosineDistance(q, n.Value))
		if math.IsNaN(score) || score < minScore {
			continue
		}
		p := m.payload[id]
		hits = append(hits, domain.VectorHit{RecipeID: id, Score: score, Name: p.name, Description: p.description})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete forgets the point. Deleting an absent id is not an error.
func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.keys[id]; ok {
		delete(m.ids, key)
		delete(m.keys, id)
		delete(m.payload, id)
	}
	return nil
}

// Len returns the number of live points.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
