package chi

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
	healthuc "github.com/kailas-cloud/cookbook/internal/usecase/health"
	recipeuc "github.com/kailas-cloud/cookbook/internal/usecase/recipe"
)

type mockRecipes struct {
	getFn     func(ctx context.Context, id int64) (domain.Recipe, error)
	listFn    func(ctx context.Context, page, pageSize int) (recipeuc.Page, error)
	createFn  func(ctx context.Context, rec *domain.Recipe) (int64, error)
	updateFn  func(ctx context.Context, rec *domain.Recipe) error
	deleteFn  func(ctx context.Context, id int64) error
	reindexFn func(ctx context.Context, id *int64) (int64, error)
	pending   int
}

func (m *mockRecipes) Get(ctx context.Context, id int64) (domain.Recipe, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return domain.Recipe{}, domain.ErrNotFound
}

func (m *mockRecipes) List(ctx context.Context, page, pageSize int) (recipeuc.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, page, pageSize)
	}
	return recipeuc.Page{Page: 1, PageSize: 9}, nil
}

func (m *mockRecipes) Create(ctx context.Context, rec *domain.Recipe) (int64, error) {
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	return 1, nil
}

func (m *mockRecipes) Update(ctx context.Context, rec *domain.Recipe) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, rec)
	}
	return nil
}

func (m *mockRecipes) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRecipes) Reindex(ctx context.Context, id *int64) (int64, error) {
	if m.reindexFn != nil {
		return m.reindexFn(ctx, id)
	}
	return 0, nil
}

func (m *mockRecipes) Pending(_ context.Context) (int, error) { return m.pending, nil }

type mockSearch struct {
	searchFn func(ctx context.Context, query string, embedding []float32) ([]domain.Recipe, error)
}

func (m *mockSearch) Search(ctx context.Context, query string, embedding []float32) ([]domain.Recipe, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, embedding)
	}
	return nil, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestRouter(t *testing.T, recipes *mockRecipes, search *mockSearch, apiKeys ...string) http.Handler {
	t.Helper()
	if recipes == nil {
		recipes = &mockRecipes{}
	}
	if search == nil {
		search = &mockSearch{}
	}
	health := &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}}
	srv := NewServer(recipes, search, health, zap.NewNop())
	r := chi.NewRouter()
	srv.Mount(r, apiKeys)
	return r
}
