package lexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func add(t *testing.T, idx *Index, recipes ...domain.Recipe) {
	t.Helper()
	ctx := context.Background()
	task, err := idx.AddOrUpdate(ctx, recipes)
	require.NoError(t, err)
	require.NoError(t, task.Wait(ctx))
}

func sampleRecipes() []domain.Recipe {
	return []domain.Recipe{
		{
			ID:          1,
			Name:        "Tomato soup",
			Description: "A warm soup of roasted tomatoes",
			Ingredients: []domain.Ingredient{
				{Name: "tomato", Quantity: domain.Quantity{Unit: domain.UnitCount, Value: 6}},
				{Name: "basil", Quantity: domain.Quantity{Unit: domain.UnitGram, Value: 10}},
			},
		},
		{
			ID:          2,
			Name:        "Pancakes",
			Description: "Fluffy breakfast pancakes",
			Ingredients: []domain.Ingredient{
				{Name: "flour", Quantity: domain.Quantity{Unit: domain.UnitGram, Value: 200}},
				{Name: "milk", Quantity: domain.Quantity{Unit: domain.UnitMl, Value: 300}},
			},
		},
		{
			ID:          3,
			Name:        "Bruschetta",
			Description: "Toasted bread topped with tomato",
			Ingredients: []domain.Ingredient{
				{Name: "bread", Quantity: domain.Quantity{Unit: domain.UnitCount, Value: 4}},
			},
		},
	}
}

func TestSearch_NormalizesScores(t *testing.T) {
	idx := newMemIndex(t)
	add(t, idx, sampleRecipes()...)

	hits, err := idx.Search(context.Background(), "tomato", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, int64(1), hits[0].RecipeID, "name and ingredient match ranks first")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
}

func TestSearch_ProjectsStoredRecipe(t *testing.T) {
	idx := newMemIndex(t)
	rs := sampleRecipes()
	rs[1].Embedding = make([]float32, domain.VectorDim)
	add(t, idx, rs...)

	hits, err := idx.Search(context.Background(), "pancakes", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	got := hits[0].Recipe
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, "Pancakes", got.Name)
	assert.Equal(t, rs[1].Ingredients, got.Ingredients)
	assert.Nil(t, got.Embedding)
}

func TestSearch_Limit(t *testing.T) {
	idx := newMemIndex(t)
	add(t, idx, sampleRecipes()...)

	hits, err := idx.Search(context.Background(), "tomato", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_EmptyQueryMatchesAllWithZeroScore(t *testing.T) {
	idx := newMemIndex(t)
	add(t, idx, sampleRecipes()...)

	hits, err := idx.Search(context.Background(), "  ", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.Zero(t, h.Score)
	}
}

func TestSearch_NoMatch(t *testing.T) {
	idx := newMemIndex(t)
	add(t, idx, sampleRecipes()...)

	hits, err := idx.Search(context.Background(), "sushi", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddOrUpdate_ReplacesByKey(t *testing.T) {
	idx := newMemIndex(t)
	add(t, idx, sampleRecipes()...)

	updated := sampleRecipes()[1]
	updated.Name = "Crepes"
	add(t, idx, updated)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	hits, err := idx.Search(context.Background(), "crepes", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].RecipeID)
}

func TestDelete(t *testing.T) {
	idx := newMemIndex(t)
	add(t, idx, sampleRecipes()...)

	require.NoError(t, idx.Delete(context.Background(), 2))
	require.NoError(t, idx.Delete(context.Background(), 42))

	hits, err := idx.Search(context.Background(), "pancakes", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestClosed(t *testing.T) {
	idx, err := Open("", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.AddOrUpdate(context.Background(), sampleRecipes())
	require.ErrorIs(t, err, domain.ErrIndexClosed)
	_, err = idx.Search(context.Background(), "tomato", 10)
	require.ErrorIs(t, err, domain.ErrIndexClosed)
	require.ErrorIs(t, idx.Ping(context.Background()), domain.ErrIndexClosed)
}

func TestOpen_ReopensOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.bleve")

	idx, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	add(t, idx, sampleRecipes()...)
	require.NoError(t, idx.Close())

	idx, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}
