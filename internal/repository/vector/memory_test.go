package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

func TestMemory_QueryNearest(t *testing.T) {
	m := NewMemory(16, 20)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Upsert(ctx, domain.VectorPoint{
			ID: int64(i + 1), Vector: unitVector(i*10, 0), Name: "r", Description: "d",
		}))
	}

	hits, err := m.Query(ctx, unitVector(20, 0.1), 10, 0.25)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(3), hits[0].RecipeID)
	assert.InDelta(t, 0.995, hits[0].Score, 0.01)
	assert.Equal(t, "r", hits[0].Name)
}

func TestMemory_ThresholdAndLimit(t *testing.T) {
	m := NewMemory(0, 0)
	ctx := context.Background()

	// All points share axis 0, so similarity to the query falls with the tilt.
	for i := 0; i < 20; i++ {
		v := unitVector(0, float32(i)*0.2)
		require.NoError(t, m.Upsert(ctx, domain.VectorPoint{ID: int64(i + 1), Vector: v}))
	}

	hits, err := m.Query(ctx, unitVector(0, 0), 10, 0.25)
	require.NoError(t, err)
	assert.Len(t, hits, 10)
	for i, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.25)
		if i > 0 {
			assert.LessOrEqual(t, h.Score, hits[i-1].Score)
		}
	}

	hits, err = m.Query(ctx, unitVector(0, 0), 50, 0.9)
	require.NoError(t, err)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.9)
	}
	assert.Less(t, len(hits), 20)
}

func TestMemory_UpsertReplaces(t *testing.T) {
	m := NewMemory(0, 0)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, domain.VectorPoint{ID: 1, Vector: unitVector(0, 0), Name: "old"}))
	require.NoError(t, m.Upsert(ctx, domain.VectorPoint{ID: 1, Vector: unitVector(50, 0), Name: "new"}))
	assert.Equal(t, 1, m.Len())

	hits, err := m.Query(ctx, unitVector(0, 0), 10, 0.25)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = m.Query(ctx, unitVector(50, 0), 10, 0.25)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Name)
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory(0, 0)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, domain.VectorPoint{ID: 1, Vector: unitVector(0, 0)}))
	require.NoError(t, m.Upsert(ctx, domain.VectorPoint{ID: 2, Vector: unitVector(0, 0.2)}))
	require.NoError(t, m.Delete(ctx, 1))
	require.NoError(t, m.Delete(ctx, 99))

	hits, err := m.Query(ctx, unitVector(0, 0), 10, 0.25)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].RecipeID)
}

func TestMemory_Empty(t *testing.T) {
	m := NewMemory(0, 0)
	hits, err := m.Query(context.Background(), unitVector(0, 0), 10, 0.25)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = m.Query(context.Background(), []float32{1}, 10, 0.25)
	require.ErrorIs(t, err, domain.ErrVectorDimMismatch)
}

func TestMemory_ZeroVectors(t *testing.T) {
	m := NewMemory(0, 0)
	ctx := context.Background()
	require.NoError(t, m.Upsert(ctx, domain.VectorPoint{ID: 1, Vector: unitVector(0, 0), Name: "a"}))

	_, err := m.Query(ctx, make([]float32, domain.VectorDim), 10, 0.25)
	require.ErrorIs(t, err, domain.ErrInvalidVector)

	err = m.Upsert(ctx, domain.VectorPoint{ID: 2, Vector: make([]float32, domain.VectorDim)})
	require.ErrorIs(t, err, domain.ErrInvalidVector)
	assert.Equal(t, 1, m.Len())

	hits, err := m.Query(ctx, unitVector(0, 0), 10, 0.25)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].RecipeID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}
