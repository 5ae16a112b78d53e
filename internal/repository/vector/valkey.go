// Package vector stores recipe embeddings for nearest-neighbour search.
// Store talks to a Valkey search index; Memory keeps an HNSW graph in process.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/cookbook/internal/db"
	"github.com/kailas-cloud/cookbook/internal/domain"
)

const (
	fieldRecipeID    = "recipe_id"
	fieldName        = "name"
	fieldDescription = "description"
	fieldVector      = "vector"

	defaultIndexName = domain.KeyPrefix + "recipes:idx"
	keyPrefix        = domain.KeyPrefix + "recipes:vec:"
)

// store is the consumer interface for the Valkey driver (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	Ping(ctx context.Context) error
}

// HNSWConfig tunes the server-side HNSW graph.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Store is the Valkey-backed vector index. Each recipe is one HASH under keyPrefix.
type Store struct {
	store     store
	indexName string
	hnsw      HNSWConfig
}

// NewStore creates a Valkey vector index driver.
func NewStore(s store, indexName string) *Store {
	if indexName == "" {
		indexName = defaultIndexName
	}
	return &Store{store: s, indexName: indexName, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW overrides the graph parameters used when the index is created.
func (s *Store) WithHNSW(cfg HNSWConfig) *Store {
	if cfg.M > 0 {
		s.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		s.hnsw.EFConstruct = cfg.EFConstruct
	}
	return s
}

// EnsureCollection creates the search index when it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.store.IndexExists(ctx, s.indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.indexName, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(s.indexName).
		Prefix(keyPrefix).
		Numeric(fieldRecipeID).
		VectorHNSW(fieldVector, domain.VectorDim, db.DistanceCosine, s.hnsw.M, s.hnsw.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := s.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", s.indexName, err)
	}
	return nil
}

// RecreateCollection drops the search index and creates it with the current HNSW parameters.
// Point hashes are kept, so the server re-indexes them in the background.
func (s *Store) RecreateCollection(ctx context.Context) error {
	if err := s.store.DropIndex(ctx, s.indexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", s.indexName, err)
	}
	return s.EnsureCollection(ctx)
}

// Upsert writes the point, replacing any previous one with the same id.
func (s *Store) Upsert(ctx context.Context, p domain.VectorPoint) error {
	if err := domain.ValidateVector(p.Vector); err != nil {
		return fmt.Errorf("upsert %d: %w", p.ID, err)
	}
	key := pointKey(p.ID)
	fields := map[string]string{
		fieldRecipeID:    strconv.FormatInt(p.ID, 10),
		fieldName:        p.Name,
		fieldDescription: p.Description,
		fieldVector:      db.VectorBlob(p.Vector),
	}
	if err := s.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Query returns at most limit hits with similarity >= minScore, best first.
func (s *Store) Query(ctx context.Context, vector []float32, limit int, minScore float64) ([]domain.VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := domain.ValidateVector(vector); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	sr, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.indexName,
		VectorField:  fieldVector,
		Vector:       vector,
		K:            limit,
		ReturnFields: []string{fieldRecipeID, fieldName, fieldDescription},
	})
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", s.indexName, err)
	}
	if sr == nil {
		return nil, nil
	}

	hits := make([]domain.VectorHit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if math.IsNaN(e.Score) || e.Score < minScore {
			continue
		}
		id, ok := entryID(e)
		if !ok {
			continue
		}
		hits = append(hits, domain.VectorHit{
			RecipeID:    id,
			Score:       e.Score,
			Name:        e.Fields[fieldName],
			Description: e.Fields[fieldDescription],
		})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Delete removes the point. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	key := pointKey(id)
	if err := s.store.Del(ctx, key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Ping checks the backing server.
func (s *Store) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func pointKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

func entryID(e db.SearchEntry) (int64, bool) {
	raw := e.Fields[fieldRecipeID]
	if raw == "" {
		raw = strings.TrimPrefix(e.Key, keyPrefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
