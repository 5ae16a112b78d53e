// Package recipe is the write path: every mutation marks the row dirty for the indexer.
package recipe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// Page is one page of a recipe listing.
type Page struct {
	Recipes  []domain.Recipe
	Total    int
	Page     int
	PageSize int
}

// Service handles recipe CRUD.
type Service struct {
	repo    Repository
	lexical IndexRemover
	vector  IndexRemover
	embed   Embedder
	logger  *zap.Logger

	defaultPageSize int
	maxPageSize     int
}

// New creates a recipe service.
func New(repo Repository, lexical, vector IndexRemover, logger *zap.Logger) *Service {
	return &Service{
		repo:            repo,
		lexical:         lexical,
		vector:          vector,
		logger:          logger,
		defaultPageSize: 9,
		maxPageSize:     100,
	}
}

// WithEmbedder computes an embedding for recipes submitted without one.
func (s *Service) WithEmbedder(e Embedder) *Service {
	s.embed = e
	return s
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Get returns one recipe.
func (s *Service) Get(ctx context.Context, id int64) (domain.Recipe, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("get recipe %d: %w", id, err)
	}
	return rec, nil
}

// List returns a 1-based page of recipes, most recently updated first.
func (s *Service) List(ctx context.Context, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	recipes, total, err := s.repo.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list recipes: %w", err)
	}
	return Page{Recipes: recipes, Total: total, Page: page, PageSize: pageSize}, nil
}

// Create validates and stores a new recipe and returns its id.
func (s *Service) Create(ctx context.Context, rec *domain.Recipe) (int64, error) {
	if err := s.prepare(ctx, rec); err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("create recipe: %w", err)
	}
	rec.ID = id
	return id, nil
}

// Update replaces a recipe's content.
func (s *Service) Update(ctx context.Context, rec *domain.Recipe) error {
	if err := s.prepare(ctx, rec); err != nil {
		return err
	}
	if !rec.HasEmbedding() {
		s.removeFromIndex(ctx, "vector", s.vector, rec.ID)
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("update recipe %d: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the row, then the recipe's entries in both indexes.
// Index cleanup failures are logged; the row is already gone.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete recipe %d: %w", id, err)
	}
	s.removeFromIndex(ctx, "vector", s.vector, id)
	s.removeFromIndex(ctx, "lexical", s.lexical, id)
	return nil
}

// Reindex marks one recipe (or all, with id nil) for indexing.
func (s *Service) Reindex(ctx context.Context, id *int64) (int64, error) {
	n, err := s.repo.MarkDirty(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("mark dirty: %w", err)
	}
	return n, nil
}

// Pending returns the size of the indexing backlog.
func (s *Service) Pending(ctx context.Context) (int, error) {
	n, err := s.repo.PendingCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

func (s *Service) prepare(ctx context.Context, rec *domain.Recipe) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.HasEmbedding() || s.embed == nil {
		return nil
	}

	res, err := s.embed.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return &domain.TransportError{Backend: domain.BackendEmbedding, Op: "embed recipe", Err: err}
	}
	domain.UsageFromContext(ctx).Record(res)
	if err := domain.ValidateVector(res.Embedding); err != nil {
		return &domain.TransportError{Backend: domain.BackendEmbedding, Op: "embed recipe", Err: err}
	}
	rec.Embedding = res.Embedding
	return nil
}

func (s *Service) removeFromIndex(ctx context.Context, backend string, idx IndexRemover, id int64) {
	if err := idx.Delete(ctx, id); err != nil {
		s.logger.Warn("remove recipe from index",
			zap.String("backend", backend), zap.Int64("recipe_id", id), zap.Error(err))
	}
}
