package treerag

import (
	"context"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	"github.com/kailas-cloud/treerag/internal/domain/mode"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

// Node is a section of a document tree.
type Node = tree.Node

// Mode selects the gate that decides whether a visited node is kept.
type Mode = mode.Mode

// Gate modes.
const (
	ModeFilter = mode.Filter
	ModeModel  = mode.Model
	ModeHybrid = mode.Hybrid
)

// Judge decides whether a node is relevant to a query.
// A Judgment with a non-nil Err is treated as a failed call.
type Judge = domain.Judge

// JudgeFunc adapts a function to Judge.
type JudgeFunc = domain.JudgeFunc

// JudgeRequest is the input of one judge call.
type JudgeRequest = domain.JudgeRequest

// Judgment is the verdict of one judge call.
type Judgment = domain.Judgment

// Components are the individual relevance signals of a node, each in [0,1].
type Components = rel.Components

// Decision is one entry of the decision log.
type Decision = decision.Record

// Embedder converts text to a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Result is the outcome of one traversal.
type Result struct {
	TraversalID  string
	Selected     []*Node
	Visited      []*Node
	Rejected     []*Node
	Recovered    []*Node
	OverFiltered bool
	Threshold    float64
	Decisions    []Decision

	log *decision.Log
}
