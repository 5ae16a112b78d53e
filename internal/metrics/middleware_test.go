package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/v1/recipes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return r
}

func serve(r http.Handler, method, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := newRouter()
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/recipes/{id}", "200"))

	serve(r, http.MethodGet, "/api/v1/recipes/1")
	serve(r, http.MethodGet, "/api/v1/recipes/2")

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/recipes/{id}", "200"))
	if got-before != 2 {
		t.Errorf("expected 2 requests under the route pattern, got %f", got-before)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestMiddleware_StatusCodes(t *testing.T) {
	r := newRouter()

	tests := []struct {
		method, path, route, status string
	}{
		{"GET", "/api/v1/recipes/404", "/api/v1/recipes/{id}", "404"},
		{"POST", "/api/v1/search", "/api/v1/search", "502"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			serve(r, tc.method, tc.path)
			got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			if got-before != 1 {
				t.Errorf("expected one request labelled %s %s %s, got %f", tc.method, tc.route, tc.status, got-before)
			}
		})
	}
}

func TestMiddleware_InFlightReturnsToZero(t *testing.T) {
	serve(newRouter(), http.MethodGet, "/api/v1/recipes/1")
	if v := testutil.ToFloat64(httpRequestsInFlight); v != 0 {
		t.Errorf("expected no requests in flight, got %f", v)
	}
}

func TestRegisterMetrics_Idempotent(t *testing.T) {
	RegisterHTTPMetrics()
	RegisterHTTPMetrics()
	RegisterPipelineMetrics()
	RegisterPipelineMetrics()
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()
}
