package domain

import (
	"fmt"
	"math"
	"strings"
)

// VectorDim is the fixed embedding size of the recipe vector index.
const VectorDim = 384

// KeyPrefix namespaces every key the service writes to Valkey.
const KeyPrefix = "cookbook:"

// Unit is the measurement unit of an ingredient quantity.
type Unit string

const (
	// UnitCount is a plain piece count.
	UnitCount Unit = "count"
	// UnitTsp is teaspoons.
	UnitTsp Unit = "tsp"
	// UnitGram is grams.
	UnitGram Unit = "gram"
	// UnitMl is millilitres.
	UnitMl Unit = "ml"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitCount, UnitTsp, UnitGram, UnitMl:
		return true
	}
	return false
}

// Quantity is an amount of an ingredient.
type Quantity struct {
	Unit  Unit   `json:"unit"`
	Value uint64 `json:"value"`
}

// String renders the quantity for humans and for the lexical index.
func (q Quantity) String() string {
	switch q.Unit {
	case UnitCount:
		return fmt.Sprintf("%d", q.Value)
	case UnitTsp:
		return fmt.Sprintf("%d tsp", q.Value)
	case UnitGram:
		return fmt.Sprintf("%d g", q.Value)
	case UnitMl:
		return fmt.Sprintf("%d ml", q.Value)
	}
	return fmt.Sprintf("%d %s", q.Value, q.Unit)
}

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Name     string   `json:"name"`
	Quantity Quantity `json:"quantity"`
}

// Recipe is the primary record mirrored into the lexical and vector indexes.
// Indexed is false until both index writes for the current content have succeeded.
type Recipe struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Ingredients []Ingredient `json:"ingredients"`
	Liked       *bool        `json:"liked,omitempty"`
	Embedding   []float32    `json:"-"`
	Indexed     bool         `json:"-"`
}

// Validate checks the user-editable content of a recipe.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecipe)
	}
	for i, ing := range r.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			return fmt.Errorf("%w: ingredient %d has no name", ErrInvalidRecipe, i)
		}
		if !ing.Quantity.Unit.Valid() {
			return fmt.Errorf("%w: ingredient %q has unknown unit %q", ErrInvalidRecipe, ing.Name, ing.Quantity.Unit)
		}
	}
	if r.Embedding != nil {
		return ValidateVector(r.Embedding)
	}
	return nil
}

// ValidateVector checks that v has VectorDim finite components and a non-zero norm.
// Cosine similarity is undefined for anything else.
func ValidateVector(v []float32) error {
	if len(v) != VectorDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrVectorDimMismatch, VectorDim, len(v))
	}
	var norm float64
	for i, f := range v {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidVector, i)
		}
		norm += x * x
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero norm", ErrInvalidVector)
	}
	return nil
}

// HasEmbedding reports whether the recipe carries a vector.
func (r *Recipe) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// IngredientNames joins ingredient names for full-text indexing.
func (r *Recipe) IngredientNames() string {
	names := make([]string, len(r.Ingredients))
	for i, ing := range r.Ingredients {
		names[i] = ing.Name
	}
	return strings.Join(names, " ")
}

// EmbeddingText is the text fed to the embedder when a recipe has no vector of its own.
func (r *Recipe) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Description != "" {
		b.WriteString("\n")
		b.WriteString(r.Description)
	}
	if len(r.Ingredients) > 0 {
		b.WriteString("\nIngredients: ")
		b.WriteString(r.IngredientNames())
	}
	return b.String()
}
