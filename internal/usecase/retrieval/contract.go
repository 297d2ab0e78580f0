package retrieval

import (
	"context"

	"github.com/google/uuid"

	"github.com/kailas-cloud/treerag/internal/domain/decision"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/usecase/navigator"
)

// TreeRepository defines the storage contract for document trees.
type TreeRepository interface {
	Put(ctx context.Context, docID string, root *tree.Node) (created bool, err error)
	Get(ctx context.Context, docID string) (*tree.Node, error)
	Delete(ctx context.Context, docID string) error
	List(ctx context.Context) ([]string, error)
}

// AuditStore persists traversal decision logs.
type AuditStore interface {
	Record(ctx context.Context, s decision.Summary, records []decision.Record) error
	Get(ctx context.Context, id uuid.UUID) (decision.Summary, []decision.Record, error)
}

// Traverser walks a tree and selects relevant nodes.
type Traverser interface {
	Traverse(ctx context.Context, root *tree.Node, query string, opts navigator.Options) (*navigator.Result, error)
}

// Scorer scores a single node and explains the score.
type Scorer interface {
	Score(ctx context.Context, node *tree.Node, query string, depth int, parent *tree.Node) (float64, rel.Components)
	Explain(ctx context.Context, node *tree.Node, query string, depth int, parent *tree.Node) string
}

// Reporter renders the decision log of one traversal.
type Reporter interface {
	Report(log *decision.Log, limit int) string
}
