package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/engine/statistical"
	"github.com/kailas-cloud/embedx/internal/usecase/hybrid"
	healthuc "github.com/kailas-cloud/embedx/internal/usecase/health"
)

const maxBatchSize = 100

// Error response codes.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codeBackendNotReady    = "backend_not_ready"
	codeNoUsableBackend    = "no_usable_backend"
	codeBackendUnavailable = "backend_unavailable"
	codeInternalError      = "internal_error"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EmbedService is the consumer interface for single and batch vectorization.
// It is satisfied by the orchestrator directly or by the persistent cache
// decorator wrapping it.
type EmbedService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// orchestration is the consumer interface for corpus and control operations.
type orchestration interface {
	AddDocuments(ctx context.Context, batch []statistical.DocumentInput) ([]string, error)
	FindSimilar(ctx context.Context, query string, topK int, threshold float64) ([]domain.SimilarResult, error)
	SwitchMethod(ctx context.Context, m domain.Method) error
	GetStatus() hybrid.Status
	ClearCaches()
}

// Server exposes the embedding API over HTTP.
type Server struct {
	embedder     EmbedService
	orchestrator orchestration
	health       *healthuc.Service
	logger       *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	embedder EmbedService,
	orchestrator orchestration,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		embedder:     embedder,
		orchestrator: orchestrator,
		health:       health,
		logger:       logger,
	}
}

// Routes registers all handlers on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/embed", s.Embed)
	r.Post("/v1/embed/batch", s.EmbedBatch)
	r.Post("/v1/documents", s.AddDocuments)
	r.Post("/v1/search", s.Search)
	r.Put("/v1/method", s.SwitchMethod)
	r.Get("/v1/status", s.GetStatus)
	r.Delete("/v1/cache", s.ClearCaches)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

// Embed handles POST /v1/embed.
func (s *Server) Embed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	vec, err := s.embedder.Embed(r.Context(), req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, embedResponse{
		Embedding:  vec,
		Dimensions: len(vec),
	})
}

type embedBatchRequest struct {
	Texts []string `json:"texts"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	Count      int         `json:"count"`
}

// EmbedBatch handles POST /v1/embed/batch.
func (s *Server) EmbedBatch(w http.ResponseWriter, r *http.Request) {
	var req embedBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Texts) == 0 || len(req.Texts) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("texts count must be between 1 and %d", maxBatchSize))
		return
	}

	vecs, err := s.embedder.EmbedBatch(r.Context(), req.Texts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	dims := 0
	if len(vecs) > 0 {
		dims = len(vecs[0])
	}
	writeJSON(w, http.StatusOK, embedBatchResponse{
		Embeddings: vecs,
		Dimensions: dims,
		Count:      len(vecs),
	})
}

type addDocumentsRequest struct {
	Documents []documentItem `json:"documents"`
}

type documentItem struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

type addDocumentsResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// AddDocuments handles POST /v1/documents.
func (s *Server) AddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Documents) == 0 || len(req.Documents) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("documents count must be between 1 and %d", maxBatchSize))
		return
	}

	batch := make([]statistical.DocumentInput, len(req.Documents))
	for i, d := range req.Documents {
		batch[i] = statistical.DocumentInput{Content: d.Content, Source: d.Source}
	}

	ids, err := s.orchestrator.AddDocuments(r.Context(), batch)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, addDocumentsResponse{
		IDs:   ids,
		Count: len(ids),
	})
}

type searchRequest struct {
	Query     string  `json:"query"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}

type searchResponse struct {
	Results []domain.SimilarResult `json:"results"`
	Total   int                    `json:"total"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	results, err := s.orchestrator.FindSimilar(r.Context(), req.Query, req.TopK, req.Threshold)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if results == nil {
		results = []domain.SimilarResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Total:   len(results),
	})
}

type switchMethodRequest struct {
	Method string `json:"method"`
}

// SwitchMethod handles PUT /v1/method.
func (s *Server) SwitchMethod(w http.ResponseWriter, r *http.Request) {
	var req switchMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	m, err := domain.ParseMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	if err := s.orchestrator.SwitchMethod(r.Context(), m); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.orchestrator.GetStatus())
}

// GetStatus handles GET /v1/status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.GetStatus())
}

// ClearCaches handles DELETE /v1/cache.
func (s *Server) ClearCaches(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.ClearCaches()
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNoUsableBackend,
		domain.ErrBackendUnavailable,
		domain.ErrBackendNotReady,
		domain.ErrDimensionMismatch,
		domain.ErrMalformedResponse,
		domain.ErrEmptyBatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)

	switch {
	case errors.Is(err, domain.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, codeValidationFailed, msg)
	case errors.Is(err, domain.ErrBackendNotReady):
		writeError(w, http.StatusConflict, codeBackendNotReady, msg)
	case errors.Is(err, domain.ErrNoUsableBackend):
		writeError(w, http.StatusServiceUnavailable, codeNoUsableBackend, msg)
	case errors.Is(err, domain.ErrBackendUnavailable),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, codeBackendUnavailable, msg)
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
