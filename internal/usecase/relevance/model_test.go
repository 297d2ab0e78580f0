package relevance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/treerag/internal/domain"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/domain/tree/treetest"
)

const epsilon = 1e-9

func TestModel_Structural(t *testing.T) {
	m := New(DefaultConfig(), nil)

	t.Run("root scores full", func(t *testing.T) {
		assert.InDelta(t, 1.0, m.Structural(0), epsilon)
	})

	t.Run("decays monotonically below max depth", func(t *testing.T) {
		for d := 1; d < DefaultMaxDepth; d++ {
			assert.Less(t, m.Structural(d), m.Structural(d-1), "depth %d", d)
		}
		assert.InDelta(t, 0.9, m.Structural(1), epsilon)
		assert.InDelta(t, 0.81, m.Structural(2), epsilon)
	})

	t.Run("zero at and beyond max depth", func(t *testing.T) {
		assert.Equal(t, 0.0, m.Structural(DefaultMaxDepth))
		assert.Equal(t, 0.0, m.Structural(DefaultMaxDepth+3))
	})
}

func TestContextual(t *testing.T) {
	parent := &tree.Node{Title: "JavaScript Guide"}

	t.Run("no parent", func(t *testing.T) {
		assert.Equal(t, 1.0, Contextual(&tree.Node{Title: "x"}, nil))
	})
	t.Run("empty titles", func(t *testing.T) {
		assert.Equal(t, 0.5, Contextual(&tree.Node{}, parent))
		assert.Equal(t, 0.5, Contextual(&tree.Node{Title: "x"}, &tree.Node{}))
	})
	t.Run("partial overlap", func(t *testing.T) {
		assert.InDelta(t, 0.5, Contextual(&tree.Node{Title: "Functions in JavaScript"}, parent), epsilon)
	})
	t.Run("no overlap is floored", func(t *testing.T) {
		assert.InDelta(t, 0.3, Contextual(&tree.Node{Title: "Variables"}, parent), epsilon)
	})
	t.Run("full overlap", func(t *testing.T) {
		assert.InDelta(t, 1.0, Contextual(&tree.Node{Title: "guide javascript extra"}, parent), epsilon)
	})
}

func TestKeywordScorer(t *testing.T) {
	ctx := context.Background()
	s := KeywordScorer{}

	t.Run("empty node scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, s.Semantic(ctx, &tree.Node{}, "javascript functions"))
	})
	t.Run("query without usable terms scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, s.Semantic(ctx, &tree.Node{Title: "Anything"}, "a an of"))
	})
	t.Run("full overlap is capped", func(t *testing.T) {
		n := &tree.Node{Title: "Functions in JavaScript", Summary: "Function declaration, arrow functions, and closures"}
		assert.InDelta(t, 1.0, s.Semantic(ctx, n, "JavaScript functions"), epsilon)
	})
	t.Run("title bonus applies once", func(t *testing.T) {
		n := &tree.Node{Title: "Introduction to JavaScript", Summary: "Basics and history of JavaScript language"}
		assert.InDelta(t, 0.7, s.Semantic(ctx, n, "JavaScript functions"), epsilon)
	})
	t.Run("text fallback when summary empty", func(t *testing.T) {
		n := &tree.Node{Text: "closures capture variables"}
		assert.InDelta(t, 0.5, s.Semantic(ctx, n, "closures explained"), epsilon)
	})
}

func TestModel_ScoreRange(t *testing.T) {
	ctx := context.Background()
	triples := [][3]float64{{0.7, 0.2, 0.1}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0.34, 0.33, 0.33}}
	nodes := []*tree.Node{{}, {Title: "Functions"}, {Summary: "only summary text here"}, treetest.JavaScriptGuide()}
	parents := []*tree.Node{nil, {}, {Title: "JavaScript Guide"}}

	for _, tr := range triples {
		w, err := rel.NewWeights(tr[0], tr[1], tr[2])
		require.NoError(t, err)
		m := New(Config{Weights: w}, nil)
		for _, n := range nodes {
			for _, p := range parents {
				for depth := 0; depth <= 7; depth++ {
					score, c := m.Score(ctx, n, "JavaScript functions", depth, p)
					assert.GreaterOrEqual(t, score, 0.0)
					assert.LessOrEqual(t, score, 1.0)
					assert.GreaterOrEqual(t, c.Semantic, 0.0)
					assert.LessOrEqual(t, c.Contextual, 1.0)
				}
			}
		}
	}
}

func TestModel_Rank(t *testing.T) {
	ctx := context.Background()
	m := New(DefaultConfig(), nil)
	root := treetest.JavaScriptGuide()

	ranked := m.Rank(ctx, root.Children, "JavaScript functions", root, 1)
	require.Len(t, ranked, 3)

	assert.Equal(t, "ch3", ranked[0].Node.ID)
	assert.Equal(t, "ch1", ranked[1].Node.ID)
	assert.Equal(t, "ch2", ranked[2].Node.ID)
	assert.InDelta(t, 0.93, ranked[0].Score, 1e-6)
	assert.InDelta(t, 0.72, ranked[1].Score, 1e-6)
	assert.InDelta(t, 0.21, ranked[2].Score, 1e-6)

	t.Run("ties keep input order", func(t *testing.T) {
		a := &tree.Node{ID: "a", Title: "same"}
		b := &tree.Node{ID: "b", Title: "same"}
		r := m.Rank(ctx, []*tree.Node{a, nil, b}, "unrelated", nil, 1)
		require.Len(t, r, 2)
		assert.Equal(t, "a", r[0].Node.ID)
		assert.Equal(t, "b", r[1].Node.ID)
	})
}

func TestModel_Explain(t *testing.T) {
	m := New(DefaultConfig(), nil)
	root := treetest.JavaScriptGuide()
	out := m.Explain(context.Background(), root.Children[2], "JavaScript functions", 1, root)

	assert.Contains(t, out, "Node: Functions in JavaScript (ch3)")
	assert.Contains(t, out, "Semantic:   1.000 x 0.70 = 0.700")
	assert.Contains(t, out, "Structural: 0.900 x 0.20 = 0.180")
	assert.Contains(t, out, "Total relevance: 0.930")
}

func TestNew_Defaults(t *testing.T) {
	m := New(Config{}, nil)
	cfg := m.Config()
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, DefaultDepthDecay, cfg.DepthDecay)
	assert.Equal(t, rel.DefaultWeights(), cfg.Weights)
}

type stubEmbedder struct {
	vectors map[string][]float32
	tokens  int
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vectors[text], TotalTokens: s.tokens}, nil
}

func TestEmbeddingScorer(t *testing.T) {
	ctx := context.Background()
	node := &tree.Node{Title: "Arrow Functions", Summary: "Modern ES6 arrow function syntax"}
	text := NodeText(node)

	t.Run("identical vectors", func(t *testing.T) {
		s := NewEmbeddingScorer(&stubEmbedder{vectors: map[string][]float32{
			"arrow": {1, 0}, text: {2, 0},
		}}, nil)
		assert.InDelta(t, 1.0, s.Semantic(ctx, node, "arrow"), 1e-6)
	})

	t.Run("orthogonal vectors map to midpoint", func(t *testing.T) {
		s := NewEmbeddingScorer(&stubEmbedder{vectors: map[string][]float32{
			"arrow": {1, 0}, text: {0, 1},
		}}, nil)
		assert.InDelta(t, 0.5, s.Semantic(ctx, node, "arrow"), 1e-6)
	})

	t.Run("provider error falls back to keywords", func(t *testing.T) {
		s := NewEmbeddingScorer(&stubEmbedder{err: errors.New("down")}, nil)
		want := KeywordScorer{}.Semantic(ctx, node, "arrow functions")
		assert.InDelta(t, want, s.Semantic(ctx, node, "arrow functions"), epsilon)
	})

	t.Run("dimension mismatch falls back", func(t *testing.T) {
		s := NewEmbeddingScorer(&stubEmbedder{vectors: map[string][]float32{
			"arrow functions": {1, 0, 0}, text: {1, 0},
		}}, nil)
		want := KeywordScorer{}.Semantic(ctx, node, "arrow functions")
		assert.InDelta(t, want, s.Semantic(ctx, node, "arrow functions"), epsilon)
	})
	t.Run("separate query embedder and usage", func(t *testing.T) {
		docs := &stubEmbedder{vectors: map[string][]float32{text: {1, 0}}, tokens: 4}
		queries := &stubEmbedder{vectors: map[string][]float32{"arrow": {1, 0}}, tokens: 2}
		s := NewEmbeddingScorer(docs, nil).WithQueryEmbedder(queries)

		uctx, usage := domain.NewContextWithUsage(ctx)
		assert.InDelta(t, 1.0, s.Semantic(uctx, node, "arrow"), 1e-6)
		assert.Equal(t, 6, usage.EmbeddingTokens())
		assert.True(t, usage.EmbeddingUsed())
	})
	t.Run("query embedded once per cached context", func(t *testing.T) {
		other := &tree.Node{Title: "Closures", Summary: "Functions capturing their lexical scope"}
		docs := &stubEmbedder{vectors: map[string][]float32{text: {1, 0}, NodeText(other): {0, 1}}, tokens: 4}
		queries := &countingEmbedder{inner: &stubEmbedder{vectors: map[string][]float32{"arrow": {1, 0}}, tokens: 2}}
		s := NewEmbeddingScorer(docs, nil).WithQueryEmbedder(queries)

		cctx, usage := domain.NewContextWithUsage(ContextWithQueryCache(ctx))
		assert.Same(t, cctx.Value(queryCacheKey{}), ContextWithQueryCache(cctx).Value(queryCacheKey{}))
		assert.InDelta(t, 1.0, s.Semantic(cctx, node, "arrow"), 1e-6)
		assert.InDelta(t, 0.5, s.Semantic(cctx, other, "arrow"), 1e-6)
		assert.Equal(t, int32(1), queries.calls.Load())
		assert.Equal(t, 2+4+4, usage.EmbeddingTokens())

		s.Semantic(ctx, node, "arrow")
		assert.Equal(t, int32(2), queries.calls.Load(), "no cache without the context value")
	})
	t.Run("failed query embedding is not cached", func(t *testing.T) {
		queries := &countingEmbedder{inner: &stubEmbedder{err: errors.New("down")}}
		s := NewEmbeddingScorer(&stubEmbedder{vectors: map[string][]float32{text: {1, 0}}}, nil).WithQueryEmbedder(queries)
		cctx := ContextWithQueryCache(ctx)
		s.Semantic(cctx, node, "arrow")
		s.Semantic(cctx, node, "arrow")
		assert.Equal(t, int32(2), queries.calls.Load())
	})
}

type countingEmbedder struct {
	inner domain.Embedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}
