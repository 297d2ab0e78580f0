package relevance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

const (
	// DefaultDepthDecay is the structural decay per level.
	DefaultDepthDecay = 0.9
	// DefaultMaxDepth is the depth at which structural relevance drops to zero.
	DefaultMaxDepth = 5

	emptyTitleContext = 0.5
	minContext        = 0.3
)

// Config parameterizes the relevance model.
type Config struct {
	Weights    rel.Weights
	DepthDecay float64
	MaxDepth   int
}

// DefaultConfig returns default weights, decay 0.9 and max depth 5.
func DefaultConfig() Config {
	return Config{Weights: rel.DefaultWeights(), DepthDecay: DefaultDepthDecay, MaxDepth: DefaultMaxDepth}
}

// Model is the composite relevance scorer. Stateless beyond configuration.
type Model struct {
	cfg      Config
	semantic SemanticScorer
}

// Ranked is a node paired with its relevance.
type Ranked struct {
	Node       *tree.Node
	Score      float64
	Components rel.Components
}

// New creates a Model. A nil semantic scorer defaults to KeywordScorer.
// Zero-valued config fields take their defaults.
func New(cfg Config, semantic SemanticScorer) *Model {
	if cfg.Weights.IsZero() {
		cfg.Weights = rel.DefaultWeights()
	}
	if cfg.DepthDecay <= 0 || cfg.DepthDecay > 1 {
		cfg.DepthDecay = DefaultDepthDecay
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if semantic == nil {
		semantic = KeywordScorer{}
	}
	return &Model{cfg: cfg, semantic: semantic}
}

// Config returns the effective configuration.
func (m *Model) Config() Config { return m.cfg }

// Score returns the composite relevance of node in [0,1] and its components.
// parent may be nil for the root.
func (m *Model) Score(
	ctx context.Context, node *tree.Node, query string, depth int, parent *tree.Node,
) (float64, rel.Components) {
	c := rel.Components{
		Semantic:   rel.Clamp01(m.semantic.Semantic(ctx, node, query)),
		Structural: m.Structural(depth),
		Contextual: Contextual(node, parent),
	}
	return m.cfg.Weights.Combine(c), c
}

// Structural returns decay^depth below max depth and 0 at or beyond it.
func (m *Model) Structural(depth int) float64 {
	if depth < 0 {
		depth = 0
	}
	if depth >= m.cfg.MaxDepth {
		return 0
	}
	return math.Pow(m.cfg.DepthDecay, float64(depth))
}

// Contextual scores title-word coherence between a node and its parent.
func Contextual(node, parent *tree.Node) float64 {
	if parent == nil {
		return 1.0
	}
	if node.Title == "" || parent.Title == "" {
		return emptyTitleContext
	}
	parentWords := rel.Words(parent.Title)
	if len(parentWords) == 0 {
		return emptyTitleContext
	}
	overlap := 0
	for w := range rel.Words(node.Title) {
		if _, ok := parentWords[w]; ok {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(parentWords))
	return math.Min(math.Max(ratio, minContext), 1.0)
}

// Rank scores nodes at depth under parent and sorts them by score descending.
// Ties keep input order.
func (m *Model) Rank(
	ctx context.Context, nodes []*tree.Node, query string, parent *tree.Node, depth int,
) []Ranked {
	ranked := make([]Ranked, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		score, c := m.Score(ctx, n, query, depth, parent)
		ranked = append(ranked, Ranked{Node: n, Score: score, Components: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// Explain renders a human-readable breakdown of the score of node.
func (m *Model) Explain(
	ctx context.Context, node *tree.Node, query string, depth int, parent *tree.Node,
) string {
	total, c := m.Score(ctx, node, query, depth, parent)
	w := m.cfg.Weights

	var b strings.Builder
	fmt.Fprintf(&b, "Node: %s (%s)\n", node.Title, node.ID)
	fmt.Fprintf(&b, "Query: %s\n", query)
	fmt.Fprintf(&b, "Depth: %d\n", depth)
	fmt.Fprintf(&b, "Semantic:   %.3f x %.2f = %.3f\n", c.Semantic, w.Semantic(), c.Semantic*w.Semantic())
	fmt.Fprintf(&b, "Structural: %.3f x %.2f = %.3f\n", c.Structural, w.Structural(), c.Structural*w.Structural())
	fmt.Fprintf(&b, "Contextual: %.3f x %.2f = %.3f\n", c.Contextual, w.Contextual(), c.Contextual*w.Contextual())
	fmt.Fprintf(&b, "Total relevance: %.3f\n", total)
	return b.String()
}
