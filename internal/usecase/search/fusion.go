package search

import (
	"math"
	"sort"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// fuse merges both hit lists into one ranking.
// score(id) = vectorScore(id) + tanh(lexicalScore(id)), absent scores count as 0.
// Equal scores are ordered by ascending recipe id.
// A recipe found only by the vector index is projected from its payload.
func fuse(lexical []domain.LexicalHit, vector []domain.VectorHit) []domain.FusedResult {
	type entry struct {
		lexScore float64
		vecScore float64
		recipe   domain.Recipe
		lexical  bool
	}

	merged := make(map[int64]*entry, len(lexical)+len(vector))
	get := func(id int64) *entry {
		e, ok := merged[id]
		if !ok {
			e = &entry{}
			merged[id] = e
		}
		return e
	}

	for _, h := range lexical {
		e := get(h.RecipeID)
		e.lexScore = h.Score
		e.recipe = h.Recipe
		e.recipe.ID = h.RecipeID
		e.lexical = true
	}
	for _, h := range vector {
		e := get(h.RecipeID)
		e.vecScore = h.Score
		if !e.lexical {
			e.recipe = domain.Recipe{ID: h.RecipeID, Name: h.Name, Description: h.Description}
		}
	}

	out := make([]domain.FusedResult, 0, len(merged))
	for id, e := range merged {
		out = append(out, domain.FusedResult{
			RecipeID: id,
			Score:    e.vecScore + math.Tanh(e.lexScore),
			Recipe:   e.recipe,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RecipeID < out[j].RecipeID
	})
	return out
}
