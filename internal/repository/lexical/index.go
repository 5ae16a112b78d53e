// Package lexical is the full-text recipe index backed by Bleve.
package lexical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

const (
	fieldName        = "name"
	fieldDescription = "description"
	fieldIngredients = "ingredients"
	fieldSource      = "source"

	// DefaultLimit caps a query when the caller passes no limit.
	DefaultLimit = 20
)

// Index is a Bleve index of recipes keyed by decimal recipe id.
// The full recipe is stored alongside so hits can be projected without the primary store.
type Index struct {
	index  bleve.Index
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	nextID atomic.Uint64
}

// Open opens the index at path, creating it when absent. Empty path keeps it in memory.
func Open(path string, logger *zap.Logger) (*Index, error) {
	m := buildMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &Index{index: idx, path: path, logger: logger}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	source.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldName, text)
	doc.AddFieldMappingsAt(fieldDescription, text)
	doc.AddFieldMappingsAt(fieldIngredients, text)
	doc.AddFieldMappingsAt(fieldSource, source)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// Task is the handle of one submitted write.
type Task struct {
	ID   uint64
	done chan struct{}
	err  error
}

// Wait blocks until the write is applied. A rejected write yields ErrLexicalTaskFailed.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return fmt.Errorf("wait lexical task %d: %w", t.ID, ctx.Err())
	}
}

// AddOrUpdate submits recipes keyed by id. The batch applies atomically in the background.
func (i *Index) AddOrUpdate(_ context.Context, recipes []domain.Recipe) (domain.IndexTask, error) {
	i.mu.RLock()
	closed := i.closed
	i.mu.RUnlock()
	if closed {
		return nil, domain.ErrIndexClosed
	}

	batch := i.index.NewBatch()
	for k := range recipes {
		doc, err := toDocument(&recipes[k])
		if err != nil {
			return nil, err
		}
		if err := batch.Index(docID(recipes[k].ID), doc); err != nil {
			return nil, fmt.Errorf("stage recipe %d: %w", recipes[k].ID, err)
		}
	}

	task := &Task{ID: i.nextID.Add(1), done: make(chan struct{})}
	go func() {
		defer close(task.done)

		i.mu.RLock()
		defer i.mu.RUnlock()
		if i.closed {
			task.err = fmt.Errorf("%w: %w", domain.ErrLexicalTaskFailed, domain.ErrIndexClosed)
			return
		}
		if err := i.index.Batch(batch); err != nil {
			i.logger.Warn("lexical batch failed", zap.Uint64("task", task.ID), zap.Error(err))
			task.err = fmt.Errorf("%w: %w", domain.ErrLexicalTaskFailed, err)
		}
	}()
	return task, nil
}

// Search returns up to limit hits with scores divided by the best score, so the top hit is 1.
// An empty query matches every recipe with score 0.
func (i *Index) Search(ctx context.Context, text string, limit int) ([]domain.LexicalHit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, domain.ErrIndexClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var q query.Query
	placeholder := strings.TrimSpace(text) == ""
	if placeholder {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewDisjunctionQuery(
			fieldQuery(text, fieldName, 2),
			fieldQuery(text, fieldDescription, 1),
			fieldQuery(text, fieldIngredients, 1),
		)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldSource}
	if placeholder {
		req.SortBy([]string{"_id"})
	}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	var maxScore float64
	for _, h := range res.Hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}

	hits := make([]domain.LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			i.logger.Warn("skipping lexical hit with foreign id", zap.String("id", h.ID))
			continue
		}
		rec, err := fromSource(h.Fields[fieldSource])
		if err != nil {
			i.logger.Warn("skipping lexical hit without source", zap.Int64("recipe_id", id), zap.Error(err))
			continue
		}
		rec.ID = id

		score := 0.0
		if !placeholder && maxScore > 0 {
			score = h.Score / maxScore
		}
		hits = append(hits, domain.LexicalHit{RecipeID: id, Score: score, Recipe: rec})
	}
	return hits, nil
}

// Delete removes a recipe. Deleting an absent id is not an error.
func (i *Index) Delete(_ context.Context, id int64) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return domain.ErrIndexClosed
	}
	if err := i.index.Delete(docID(id)); err != nil {
		return fmt.Errorf("lexical delete %d: %w", id, err)
	}
	return nil
}

// Count returns the number of indexed recipes.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, domain.ErrIndexClosed
	}
	n, err := i.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("lexical count: %w", err)
	}
	return n, nil
}

// Ping reports whether the index is usable.
func (i *Index) Ping(_ context.Context) error {
	_, err := i.Count()
	return err
}

// Close waits for in-flight tasks and closes the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if err := i.index.Close(); err != nil {
		return fmt.Errorf("close lexical index: %w", err)
	}
	return nil
}

func fieldQuery(text, field string, boost float64) query.Query {
	q := bleve.NewMatchQuery(text)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func toDocument(r *domain.Recipe) (map[string]any, error) {
	src := *r
	src.Embedding = nil
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode recipe %d: %w", r.ID, err)
	}
	return map[string]any{
		fieldName:        r.Name,
		fieldDescription: r.Description,
		fieldIngredients: r.IngredientNames(),
		fieldSource:      string(data),
	}, nil
}

func fromSource(v any) (domain.Recipe, error) {
	s, ok := v.(string)
	if !ok {
		return domain.Recipe{}, fmt.Errorf("stored source has type %T", v)
	}
	var r domain.Recipe
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return domain.Recipe{}, fmt.Errorf("decode source: %w", err)
	}
	return r, nil
}

