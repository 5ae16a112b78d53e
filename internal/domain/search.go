package domain

import "context"

// LexicalHit is a full-text match with a score normalised to [0,1].
type LexicalHit struct {
	RecipeID int64
	Score    float64
	Recipe   Recipe
}

// VectorHit is a nearest-neighbour match. Score is cosine similarity.
// Only the payload stored alongside the point is available.
type VectorHit struct {
	RecipeID    int64
	Score       float64
	Name        string
	Description string
}

// FusedResult is a recipe ranked by the combined lexical and vector score.
type FusedResult struct {
	RecipeID int64
	Score    float64
	Recipe   Recipe
}

// VectorPoint is what the vector index stores per recipe.
type VectorPoint struct {
	ID          int64
	Vector      []float32
	Name        string
	Description string
}

// PointFromRecipe projects a recipe into its vector index payload.
func PointFromRecipe(r *Recipe) VectorPoint {
	return VectorPoint{
		ID:          r.ID,
		Vector:      r.Embedding,
		Name:        r.Name,
		Description: r.Description,
	}
}

// IndexTask is the handle of an asynchronous lexical index write.
type IndexTask interface {
	Wait(ctx context.Context) error
}
