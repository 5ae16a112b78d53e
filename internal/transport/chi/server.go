package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/domain"
	healthuc "github.com/kailas-cloud/cookbook/internal/usecase/health"
)

// maxBodyBytes caps request bodies; a recipe with a 384-float embedding is well below it.
const maxBodyBytes = 1 << 20

// Server serves the recipe catalog API.
type Server struct {
	recipes       RecipeService
	search        SearchService
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(recipes RecipeService, search SearchService, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		recipes: recipes,
		search:  search,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		transportHandler,
		validationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeRecipeNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrInvalidVector, http.StatusBadRequest, CodeInvalidVector),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrLexicalTaskFailed, http.StatusBadGateway, CodeBackendUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	}
	return s
}

// Mount registers the API on r. Mutating routes require a bearer token when apiKeys is non-empty.
func (s *Server) Mount(r chi.Router, apiKeys []string) {
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/recipes", s.ListRecipes)
		r.Get("/recipes/{id}", s.GetRecipe)
		r.Post("/search", s.SearchRecipes)
		r.Get("/index/status", s.IndexStatus)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiKeys))
			r.Put("/recipes", s.CreateRecipe)
			r.Post("/recipes/{id}", s.UpdateRecipe)
			r.Delete("/recipes/{id}", s.DeleteRecipe)
			r.Post("/index/reindex", s.Reindex)
		})
	})
}

// recipeRequest is the create/update body. Embedding is optional.
type recipeRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Ingredients []domain.Ingredient `json:"ingredients"`
	Liked       *bool               `json:"liked,omitempty"`
	Embedding   []float32           `json:"embedding,omitempty"`
}

func (req recipeRequest) toDomain(id int64) domain.Recipe {
	return domain.Recipe{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Ingredients: req.Ingredients,
		Liked:       req.Liked,
		Embedding:   req.Embedding,
	}
}

type recipeListResponse struct {
	Items    []domain.Recipe `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type searchRequest struct {
	Embedding []float32 `json:"embedding,omitempty"`
}

type searchResultItem struct {
	Recipe domain.Recipe `json:"recipe"`
}

type searchResponse struct {
	Results []searchResultItem `json:"results"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ListRecipes handles GET /api/v1/recipes.
func (s *Server) ListRecipes(w http.ResponseWriter, r *http.Request) {
	var page, pageSize int
	if err := runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &page); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter page")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "page_size", r.URL.Query(), &pageSize); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter page_size")
		return
	}

	res, err := s.recipes.List(r.Context(), page, pageSize)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := res.Recipes
	if items == nil {
		items = []domain.Recipe{}
	}
	writeJSON(w, http.StatusOK, recipeListResponse{
		Items:    items,
		Total:    res.Total,
		Page:     res.Page,
		PageSize: res.PageSize,
	})
}

// GetRecipe handles GET /api/v1/recipes/{id}.
func (s *Server) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.recipes.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecipe handles PUT /api/v1/recipes.
func (s *Server) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req recipeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	rec := req.toDomain(0)
	ctx, usage := domain.NewContextWithUsage(r.Context())
	id, err := s.recipes.Create(ctx, &rec)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// UpdateRecipe handles POST /api/v1/recipes/{id}.
func (s *Server) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req recipeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	rec := req.toDomain(id)
	ctx, usage := domain.NewContextWithUsage(r.Context())
	if err := s.recipes.Update(ctx, &rec); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

// DeleteRecipe handles DELETE /api/v1/recipes/{id}.
func (s *Server) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.recipes.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchRecipes handles POST /api/v1/search?query=.
func (s *Server) SearchRecipes(w http.ResponseWriter, r *http.Request) {
	var query string
	if err := runtime.BindQueryParameter("form", true, false, "query", r.URL.Query(), &query); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter query")
		return
	}
	var req searchRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	recipes, err := s.search.Search(ctx, query, req.Embedding)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchResultItem, len(recipes))
	for i := range recipes {
		items[i] = searchResultItem{Recipe: recipes[i]}
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponse{Results: items})
}

// IndexStatus handles GET /api/v1/index/status.
func (s *Server) IndexStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.recipes.Pending(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": n})
}

// Reindex handles POST /api/v1/index/reindex[?id=].
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	var id *int64
	if err := runtime.BindQueryParameter("form", true, false, "id", r.URL.Query(), &id); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter id")
		return
	}

	n, err := s.recipes.Reindex(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"marked": n})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter id")
		return 0, false
	}
	return id, true
}

// decodeBody reads a JSON body into v. With optional set an empty body is accepted.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
	return false
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Calls > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

// writeJSON encodes v before writing the status, so an unencodable value becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorResponse{Code: CodeInternalError, Message: "internal error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := requestLogger(r, s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
