package relevance

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/treerag/internal/domain"
)

// SumTolerance is the allowed deviation of a weight sum from 1.0.
const SumTolerance = 1e-6

// Weights are the coefficients of the three relevance components.
// Immutable once constructed.
type Weights struct {
	semantic   float64
	structural float64
	contextual float64
}

// NewWeights validates and creates a weight set.
// All coefficients must be non-negative and sum to 1.0 within SumTolerance.
func NewWeights(semantic, structural, contextual float64) (Weights, error) {
	for _, w := range []float64{semantic, structural, contextual} {
		if math.IsNaN(w) || w < 0 {
			return Weights{}, fmt.Errorf("%w: negative or NaN coefficient %v", domain.ErrInvalidWeights, w)
		}
	}
	sum := semantic + structural + contextual
	if math.Abs(sum-1.0) > SumTolerance {
		return Weights{}, domain.NewWeightsError("relevance", sum)
	}
	return Weights{semantic: semantic, structural: structural, contextual: contextual}, nil
}

// DefaultWeights returns 0.7 semantic, 0.2 structural, 0.1 contextual.
func DefaultWeights() Weights {
	return Weights{semantic: 0.7, structural: 0.2, contextual: 0.1}
}

// Semantic returns the semantic coefficient.
func (w Weights) Semantic() float64 { return w.semantic }

// Structural returns the structural coefficient.
func (w Weights) Structural() float64 { return w.structural }

// Contextual returns the contextual coefficient.
func (w Weights) Contextual() float64 { return w.contextual }

// IsZero reports whether the weights were never constructed.
func (w Weights) IsZero() bool { return w == Weights{} }

// Components holds the per-signal scores of one node, each in [0,1].
type Components struct {
	Semantic   float64 `json:"semantic"`
	Structural float64 `json:"structural"`
	Contextual float64 `json:"contextual"`
}

// Combine returns the weighted sum of c clamped to [0,1].
func (w Weights) Combine(c Components) float64 {
	return Clamp01(w.semantic*c.Semantic + w.structural*c.Structural + w.contextual*c.Contextual)
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
