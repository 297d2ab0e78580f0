package relevance

import (
	"context"

	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

// SemanticScorer measures query/node similarity in [0,1].
// Implementations must not fail: degraded inputs score low instead.
type SemanticScorer interface {
	Semantic(ctx context.Context, node *tree.Node, query string) float64
}
