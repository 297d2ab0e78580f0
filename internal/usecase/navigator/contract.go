package navigator

import (
	"context"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/usecase/relevance"
)

// Ranker orders sibling nodes by relevance.
type Ranker interface {
	Rank(ctx context.Context, nodes []*tree.Node, query string, parent *tree.Node, depth int) []relevance.Ranked
	Score(ctx context.Context, node *tree.Node, query string, depth int, parent *tree.Node) (float64, rel.Components)
}

// Decider is the keep/drop gate with over-filtering recovery.
// Evaluate must not log; the navigator records the final verdict.
type Decider interface {
	Evaluate(ctx context.Context, node *tree.Node, query, parentContext string, depth int, judge domain.Judge) decision.Decision
	DetectOverFiltering(selected, filtered []*tree.Node, query string) (bool, []*tree.Node)
	AdjustThreshold(numSelected, numTotal, queryLength int) float64
}
