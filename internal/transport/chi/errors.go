package chi

import (
	"context"
	"errors"
	"net/http"

	"github.com/kailas-cloud/cookbook/internal/domain"
)

// ErrorCode is the machine-readable error kind in an ErrorResponse.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeVectorDimMismatch      ErrorCode = "vector_dim_mismatch"
	CodeInvalidVector          ErrorCode = "invalid_vector"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeRecipeNotFound         ErrorCode = "recipe_not_found"
	CodeBackendUnavailable     ErrorCode = "backend_unavailable"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeTimeout                ErrorCode = "timeout"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrInvalidVector,
		domain.ErrEmbeddingProviderError,
		domain.ErrLexicalTaskFailed,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// transportHandler maps a failed backend call to 502. It runs before the sentinel
// handlers so a provider returning a wrong-sized vector is not blamed on the client.
func transportHandler(w http.ResponseWriter, err error, _ string) bool {
	var te *domain.TransportError
	if !errors.As(err, &te) {
		return false
	}
	code := CodeBackendUnavailable
	if te.Backend == domain.BackendEmbedding {
		code = CodeEmbeddingProviderError
	}
	writeError(w, http.StatusBadGateway, code, te.Backend+" "+te.Op+" failed")
	return true
}

// validationHandler echoes the validation detail, which never carries internals.
func validationHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrInvalidRecipe) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	return true
}
