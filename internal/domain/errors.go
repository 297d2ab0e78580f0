package domain

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrTreeNotFound signals a missing document tree.
	ErrTreeNotFound = errors.New("tree not found")
	// ErrNodeNotFound signals a node id absent from a tree.
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidTree signals a structurally broken tree (nil root, cycle, duplicate id).
	ErrInvalidTree = tree.ErrInvalid
	// ErrInvalidQuery signals an empty or oversized query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidMode signals an unknown traversal mode.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidWeights signals a weight set that is negative or does not sum to 1.
	ErrInvalidWeights = errors.New("invalid weights")

	// ErrJudgeFailed signals a relevance judge call that produced no usable verdict.
	ErrJudgeFailed = errors.New("relevance judge failed")
	// ErrMalformedJudgment signals a judge verdict that could not be interpreted.
	ErrMalformedJudgment = errors.New("malformed judgment")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
)

// WeightsError reports which weight set failed validation and its sum.
type WeightsError struct {
	Set string
	Sum float64
}

func (e *WeightsError) Error() string {
	return fmt.Sprintf("%s: %s weights sum to %.6f, want 1.0", ErrInvalidWeights.Error(), e.Set, e.Sum)
}

func (e *WeightsError) Unwrap() error { return ErrInvalidWeights }

// NewWeightsError creates a weight validation error for the named set.
func NewWeightsError(set string, sum float64) error {
	return &WeightsError{Set: set, Sum: sum}
}
