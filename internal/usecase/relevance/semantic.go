package relevance

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

const (
	minQueryTermLen = 3
	titleBonus      = 0.2
)

// NodeText is the text a node is scored on: title and body joined with ". ".
func NodeText(n *tree.Node) string {
	body := n.Body()
	switch {
	case n.Title == "":
		return body
	case body == "":
		return n.Title
	default:
		return n.Title + ". " + body
	}
}

// KeywordScorer scores by query-term overlap with a bonus for title hits.
type KeywordScorer struct{}

// Semantic implements SemanticScorer.
func (KeywordScorer) Semantic(_ context.Context, node *tree.Node, query string) float64 {
	text := NodeText(node)
	if strings.TrimSpace(text) == "" {
		return 0
	}
	queryTerms := rel.TermSet(query, minQueryTermLen)
	if len(queryTerms) == 0 {
		return 0
	}
	nodeTerms := rel.TermSet(text, 1)

	overlap := 0
	for t := range queryTerms {
		if _, ok := nodeTerms[t]; ok {
			overlap++
		}
	}
	score := float64(overlap) / float64(len(queryTerms))

	title := strings.ToLower(node.Title)
	for t := range queryTerms {
		if title != "" && strings.Contains(title, t) {
			score += titleBonus
			break
		}
	}
	return math.Min(score, 1.0)
}

// EmbeddingScorer scores by cosine similarity of query and node embeddings,
// remapped to [0,1]. Any embedding failure falls back to the keyword scorer.
type EmbeddingScorer struct {
	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
	fallback      KeywordScorer
	logger        *zap.Logger
}

// NewEmbeddingScorer creates an embedding-backed scorer. The same embedder
// serves node texts and queries unless WithQueryEmbedder is set.
func NewEmbeddingScorer(embedder domain.Embedder, logger *zap.Logger) *EmbeddingScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingScorer{docEmbedder: embedder, queryEmbedder: embedder, logger: logger}
}

// WithQueryEmbedder sets a separate embedder for queries (asymmetric models).
func (s *EmbeddingScorer) WithQueryEmbedder(e domain.Embedder) *EmbeddingScorer {
	if e != nil {
		s.queryEmbedder = e
	}
	return s
}

// Semantic implements SemanticScorer.
func (s *EmbeddingScorer) Semantic(ctx context.Context, node *tree.Node, query string) float64 {
	text := NodeText(node)
	if strings.TrimSpace(text) == "" {
		return 0
	}
	sim, err := s.similarity(ctx, query, text)
	if err != nil {
		s.logger.Warn("Embedding similarity failed, using keyword overlap",
			zap.String("node_id", node.ID),
			zap.Error(err),
		)
		return s.fallback.Semantic(ctx, node, query)
	}
	return rel.Clamp01((sim + 1) / 2)
}

func (s *EmbeddingScorer) similarity(ctx context.Context, query, text string) (float64, error) {
	q, cached, err := embedQuery(ctx, s.queryEmbedder, query)
	if err != nil {
		return 0, err
	}
	d, err := s.docEmbedder.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	usage := domain.UsageFromContext(ctx)
	if !cached {
		usage.AddEmbeddingTokens(q.TotalTokens)
	}
	usage.AddEmbeddingTokens(d.TotalTokens)
	return Cosine(q.Embedding, d.Embedding)
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, domain.ErrEmbeddingProviderError
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, domain.ErrEmbeddingProviderError
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
