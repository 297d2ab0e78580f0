package chi

import (
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
)

// ErrorCode is a machine-readable error code of the API.
type ErrorCode string

// API error codes.
const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeUnauthorized           ErrorCode = "unauthorized"
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeDocumentNotFound       ErrorCode = "document_not_found"
	ErrorCodeNodeNotFound           ErrorCode = "node_not_found"
	ErrorCodeNotFound               ErrorCode = "not_found"
	ErrorCodeInvalidTree            ErrorCode = "invalid_tree"
	ErrorCodeInvalidQuery           ErrorCode = "invalid_query"
	ErrorCodeInvalidMode            ErrorCode = "invalid_mode"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeJudgeFailed            ErrorCode = "judge_failed"
	ErrorCodeTimeout                ErrorCode = "timeout"
	ErrorCodeNotImplemented         ErrorCode = "not_implemented"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// PutTreeResponse describes a stored tree.
type PutTreeResponse struct {
	DocumentID string `json:"document_id"`
	Created    bool   `json:"created"`
	Nodes      int    `json:"nodes"`
	Depth      int    `json:"depth"`
}

// DocumentListResponse lists stored document ids.
type DocumentListResponse struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

// RetrieveRequest is the body of POST /documents/{id}/retrieve.
type RetrieveRequest struct {
	Query         string `json:"query"`
	MaxDepth      *int   `json:"max_depth,omitempty"`
	MaxBranches   *int   `json:"max_branches,omitempty"`
	Mode          string `json:"mode,omitempty"`
	IncludeReport bool   `json:"include_report,omitempty"`
}

// NodeRef is a selected node without its children.
type NodeRef struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	PageRef string `json:"page_ref,omitempty"`
}

// RetrieveResponse is the outcome of a traversal.
type RetrieveResponse struct {
	TraversalID  string            `json:"traversal_id"`
	Selected     []NodeRef         `json:"selected"`
	Visited      int               `json:"visited"`
	Rejected     []string          `json:"rejected"`
	Recovered    []string          `json:"recovered"`
	OverFiltered bool              `json:"over_filtered"`
	Threshold    float64           `json:"threshold"`
	Decisions    []decision.Record `json:"decisions"`
	Report       string            `json:"report,omitempty"`
}

// ExplainRequest is the body of POST /documents/{id}/explain.
type ExplainRequest struct {
	NodeID string `json:"node_id"`
	Query  string `json:"query"`
}

// ExplainResponse is the relevance breakdown of one node.
type ExplainResponse struct {
	NodeID      string         `json:"node_id"`
	Depth       int            `json:"depth"`
	Score       float64        `json:"score"`
	Components  rel.Components `json:"components"`
	Explanation string         `json:"explanation"`
}

// DecisionsResponse is an audited traversal with its decision records.
type DecisionsResponse struct {
	Traversal decision.Summary  `json:"traversal"`
	Decisions []decision.Record `json:"decisions"`
}

// HealthResponse reports the aggregated health status.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
