package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/mode"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/logger"
	healthuc "github.com/kailas-cloud/treerag/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/treerag/internal/usecase/retrieval"
)

const defaultMaxBodyBytes = 8 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the document tree and retrieval API.
type Server struct {
	retrieval     *retrievaluc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	maxBodyBytes  int64
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(retrieval *retrievaluc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		retrieval:    retrieval,
		health:       health,
		logger:       logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrTreeNotFound, http.StatusNotFound, ErrorCodeDocumentNotFound),
		sentinelHandler(domain.ErrNodeNotFound, http.StatusNotFound, ErrorCodeNodeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		validationHandler(domain.ErrInvalidTree, ErrorCodeInvalidTree),
		validationHandler(domain.ErrInvalidQuery, ErrorCodeInvalidQuery),
		validationHandler(domain.ErrInvalidMode, ErrorCodeInvalidMode),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
		sentinelHandler(domain.ErrJudgeFailed, http.StatusBadGateway, ErrorCodeJudgeFailed),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, ErrorCodeTimeout),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, ErrorCodeNotImplemented),
	}
	return s
}

// WithMaxBodyBytes bounds request bodies.
func (s *Server) WithMaxBodyBytes(n int) *Server {
	if n > 0 {
		s.maxBodyBytes = int64(n)
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Get("/documents", s.ListDocuments)
	r.Route("/documents/{id}", func(r chi.Router) {
		r.Put("/tree", s.PutTree)
		r.Get("/tree", s.GetTree)
		r.Delete("/tree", s.DeleteTree)
		r.Post("/markdown", s.ImportMarkdown)
		r.Post("/retrieve", s.Retrieve)
		r.Post("/explain", s.Explain)
	})
	r.Get("/traversals/{id}/decisions", s.Decisions)
}

// PutTree handles PUT /documents/{id}/tree.
func (s *Server) PutTree(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	root, err := tree.Decode(body)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	created, err := s.retrieval.PutTree(r.Context(), docID, root)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, treeToResponse(docID, created, root))
}

// ImportMarkdown handles POST /documents/{id}/markdown.
func (s *Server) ImportMarkdown(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	root, created, err := s.retrieval.ImportMarkdown(
		r.Context(), docID, http.MaxBytesReader(w, r.Body, s.maxBodyBytes),
	)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeBadRequest, "request body too large")
			return
		}
		s.handleDomainError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, treeToResponse(docID, created, root))
}

// GetTree handles GET /documents/{id}/tree.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	root, err := s.retrieval.GetTree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// DeleteTree handles DELETE /documents/{id}/tree.
func (s *Server) DeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := s.retrieval.DeleteTree(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.retrieval.ListDocuments(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Items: ids, Total: len(ids)})
}

// Retrieve handles POST /documents/{id}/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.retrieval.Retrieve(ctx, chi.URLParam(r, "id"), retrieveRequestFromAPI(req))
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, retrieveResponseToAPI(resp))
}

// Explain handles POST /documents/{id}/explain.
func (s *Server) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.NodeID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "node_id is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	exp, err := s.retrieval.Explain(ctx, chi.URLParam(r, "id"), req.NodeID, req.Query)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, ExplainResponse{
		NodeID:      exp.NodeID,
		Depth:       exp.Depth,
		Score:       exp.Score,
		Components:  exp.Components,
		Explanation: exp.Text,
	})
}

// Decisions handles GET /traversals/{id}/decisions.
func (s *Server) Decisions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "traversal id must be a UUID")
		return
	}

	summary, records, err := s.retrieval.Decisions(r.Context(), id)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, DecisionsResponse{Traversal: summary, Decisions: records})
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

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage.EmbeddingUsed() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens()))
	}
	if n := usage.JudgeCalls(); n > 0 {
		w.Header().Set("X-Judge-Calls", strconv.Itoa(n))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrTreeNotFound,
		domain.ErrNodeNotFound,
		domain.ErrNotFound,
		domain.ErrInvalidTree,
		domain.ErrInvalidQuery,
		domain.ErrInvalidMode,
		domain.ErrEmbeddingProviderError,
		domain.ErrJudgeFailed,
		context.DeadlineExceeded,
		domain.ErrNotImplemented,
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

// validationHandler answers 400 with the validation detail of err.
func validationHandler(sentinel error, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, _ string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.FromContext(ctx).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func treeToResponse(docID string, created bool, root *tree.Node) PutTreeResponse {
	return PutTreeResponse{
		DocumentID: docID,
		Created:    created,
		Nodes:      root.Count(),
		Depth:      root.Depth(),
	}
}

func retrieveRequestFromAPI(req RetrieveRequest) retrievaluc.Request {
	out := retrievaluc.Request{
		Query:         req.Query,
		MaxDepth:      req.MaxDepth,
		Mode:          mode.Mode(req.Mode),
		IncludeReport: req.IncludeReport,
	}
	if req.MaxBranches != nil {
		out.MaxBranches = *req.MaxBranches
	}
	return out
}

func retrieveResponseToAPI(resp retrievaluc.Response) RetrieveResponse {
	res := resp.Result
	out := RetrieveResponse{
		TraversalID:  res.TraversalID.String(),
		Selected:     make([]NodeRef, len(res.Selected)),
		Visited:      len(res.Visited),
		Rejected:     nodeIDs(res.Rejected),
		Recovered:    nodeIDs(res.Recovered),
		OverFiltered: res.OverFiltered,
		Threshold:    res.Threshold,
		Decisions:    res.Log.Records(),
		Report:       resp.Report,
	}
	for i, n := range res.Selected {
		out.Selected[i] = NodeRef{ID: n.ID, Title: n.Title, Summary: n.Summary, PageRef: n.PageRef}
	}
	return out
}

func nodeIDs(nodes []*tree.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

