package domain

import (
	"context"
	"math"

	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

// Judge is an external relevance oracle (typically an LLM).
// Implementations report failure through Judgment.Err instead of panicking.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) Judgment
}

// JudgeRequest is the input of a single relevance verdict.
type JudgeRequest struct {
	Node          *tree.Node
	Query         string
	ParentContext string
}

// Judgment is a relevance verdict. A non-nil Err marks the failure variant.
type Judgment struct {
	Relevant   bool
	Confidence float64
	Reason     string
	Err        error
}

// Failed reports whether the verdict is unusable: an explicit error
// or a confidence outside [0,1].
func (j Judgment) Failed() bool {
	if j.Err != nil {
		return true
	}
	return math.IsNaN(j.Confidence) || j.Confidence < 0 || j.Confidence > 1
}

// JudgeFunc adapts a plain function to the Judge interface.
type JudgeFunc func(ctx context.Context, req JudgeRequest) Judgment

// Judge calls f.
func (f JudgeFunc) Judge(ctx context.Context, req JudgeRequest) Judgment { return f(ctx, req) }

// FailedJudgment builds the failure variant.
func FailedJudgment(err error) Judgment { return Judgment{Err: err} }
