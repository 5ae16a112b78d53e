package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing recipe.
	ErrNotFound = errors.New("recipe not found")
	// ErrInvalidRecipe signals recipe content that fails validation.
	ErrInvalidRecipe = errors.New("invalid recipe")
	// ErrVectorDimMismatch signals an embedding of the wrong size.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidVector signals an embedding with zero norm or non-finite components.
	ErrInvalidVector = errors.New("invalid vector")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLexicalTaskFailed signals that the lexical index rejected a write.
	ErrLexicalTaskFailed = errors.New("lexical index task failed")
	// ErrIndexClosed signals use of a backend after Close.
	ErrIndexClosed = errors.New("index is closed")
)

// Backend names used in TransportError.
const (
	BackendLexical   = "lexical"
	BackendVector    = "vector"
	BackendEmbedding = "embedding"
)

// DecodeError is a change notification whose payload is not a recipe id.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode change payload %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError is a failed call to the lexical index, vector index or embedder.
type TransportError struct {
	Backend string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return e.Backend + " " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError is a failed primary store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransport reports whether err came from a search backend.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
