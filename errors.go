package treerag

import "github.com/kailas-cloud/treerag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidTree            = domain.ErrInvalidTree
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrInvalidMode            = domain.ErrInvalidMode
	ErrInvalidWeights         = domain.ErrInvalidWeights
	ErrNodeNotFound           = domain.ErrNodeNotFound
	ErrJudgeFailed            = domain.ErrJudgeFailed
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
