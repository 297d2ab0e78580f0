package navigator

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	"github.com/kailas-cloud/treerag/internal/domain/mode"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/domain/tree/treetest"
	"github.com/kailas-cloud/treerag/internal/usecase/filter"
	"github.com/kailas-cloud/treerag/internal/usecase/relevance"
)

func newNavigator(t *testing.T, judge domain.Judge) *Navigator {
	t.Helper()
	f, err := filter.New(filter.DefaultConfig())
	require.NoError(t, err)
	return New(relevance.New(relevance.DefaultConfig(), nil), f, judge)
}

func ids(nodes []*tree.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestTraverse_JavaScriptGuide(t *testing.T) {
	nav := newNavigator(t, nil)
	root := treetest.JavaScriptGuide()

	res, err := nav.Traverse(context.Background(), root, "JavaScript functions", Options{MaxDepth: 2, MaxBranches: 2})
	require.NoError(t, err)

	t.Run("root and the direct keyword match are selected", func(t *testing.T) {
		selected := ids(res.Selected)
		assert.Equal(t, "root", selected[0])
		assert.Contains(t, selected, "ch3")
	})

	t.Run("one decision per non-root visited node", func(t *testing.T) {
		records := res.Log.Records()
		assert.Len(t, records, len(res.Visited)-1)
		logged := map[string]bool{}
		for _, r := range records {
			logged[r.NodeID] = true
			assert.GreaterOrEqual(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
			assert.GreaterOrEqual(t, r.CombinedScore, 0.0)
			assert.LessOrEqual(t, r.CombinedScore, 1.0)
		}
		for _, n := range res.Visited[1:] {
			assert.True(t, logged[n.ID], "missing decision for %s", n.ID)
		}
	})

	t.Run("branching limit drops the weakest chapter", func(t *testing.T) {
		assert.NotContains(t, ids(res.Visited), "ch2")
	})

	t.Run("over-filtering recovers the introduction", func(t *testing.T) {
		assert.True(t, res.OverFiltered)
		assert.Equal(t, []string{"ch1"}, ids(res.Recovered))
		assert.Equal(t, []string{"root", "ch3", "ch1"}, ids(res.Selected))
		assert.Equal(t, []string{"ch1", "ch3s2", "ch3s1"}, ids(res.Rejected))
		assert.Equal(t, 1, res.Log.Recovered())
	})

	t.Run("final threshold follows the filter rate", func(t *testing.T) {
		assert.InDelta(t, 0.7, res.Threshold, 1e-9)
		assert.NotEqual(t, uuid.Nil, res.TraversalID)
	})
}

func TestTraverse_Limits(t *testing.T) {
	relevant := domain.JudgeFunc(func(context.Context, domain.JudgeRequest) domain.Judgment {
		return domain.Judgment{Relevant: true, Confidence: 0.9}
	})

	t.Run("max depth zero selects only the root", func(t *testing.T) {
		res, err := newNavigator(t, relevant).Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript", Options{MaxDepth: 0, MaxBranches: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"root"}, ids(res.Selected))
		assert.Equal(t, 0, res.Log.Len())
	})

	t.Run("nodes at max depth are not expanded", func(t *testing.T) {
		res, err := newNavigator(t, relevant).Traverse(context.Background(), treetest.Chain(6), "chain node", Options{MaxDepth: 3, MaxBranches: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"l0", "l1", "l2", "l3"}, ids(res.Selected))
	})

	t.Run("max branches bounds evaluated children", func(t *testing.T) {
		res, err := newNavigator(t, relevant).Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript", Options{MaxDepth: 1, MaxBranches: 1})
		require.NoError(t, err)
		assert.Len(t, res.Visited, 2)
	})
}

func TestTraverse_DepthFirstByRank(t *testing.T) {
	relevant := domain.JudgeFunc(func(context.Context, domain.JudgeRequest) domain.Judgment {
		return domain.Judgment{Relevant: true, Confidence: 0.9}
	})
	res, err := newNavigator(t, relevant).Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 2, MaxBranches: 2})
	require.NoError(t, err)

	// best chapter is expanded before the second one
	assert.Equal(t, []string{"root", "ch3", "ch1", "ch3s2", "ch3s1", "ch1s1", "ch1s2"}, ids(res.Selected))
	assert.False(t, res.OverFiltered)
}

func TestTraverse_ParentContextIsBreadcrumb(t *testing.T) {
	var contexts []string
	judge := domain.JudgeFunc(func(_ context.Context, req domain.JudgeRequest) domain.Judgment {
		contexts = append(contexts, req.ParentContext)
		return domain.Judgment{Relevant: true, Confidence: 1}
	})
	_, err := newNavigator(t, judge).Traverse(context.Background(), treetest.Chain(2), "chain", Options{MaxDepth: 5, MaxBranches: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Level 0", "Level 0 > Level 1"}, contexts)
}

func TestTraverse_Modes(t *testing.T) {
	root := treetest.JavaScriptGuide()

	t.Run("model mode gates on the adaptive threshold", func(t *testing.T) {
		res, err := newNavigator(t, nil).Traverse(context.Background(), root, "JavaScript functions", Options{MaxDepth: 1, MaxBranches: 3, Mode: mode.Model})
		require.NoError(t, err)
		// threshold 0.7 at first batch: nothing gated yet besides the root
		assert.Equal(t, []string{"root", "ch3", "ch1"}, ids(res.Selected))
		for _, r := range res.Log.Records() {
			assert.Equal(t, r.Confidence, r.CombinedScore)
		}
	})

	t.Run("hybrid mode needs both gates", func(t *testing.T) {
		res, err := newNavigator(t, nil).Traverse(context.Background(), root, "JavaScript functions", Options{MaxDepth: 1, MaxBranches: 3, Mode: mode.Hybrid})
		require.NoError(t, err)
		assert.Equal(t, []string{"root", "ch3"}, ids(res.Selected[:2]))
		assert.Equal(t, 3, res.Log.Len())
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := newNavigator(t, nil).Traverse(context.Background(), root, "q", Options{Mode: "beam"})
		assert.Error(t, err)
	})
}

func cookingHandbook() *tree.Node {
	return &tree.Node{
		ID:    "root",
		Title: "Cooking Handbook",
		Children: []*tree.Node{
			{ID: "a", Title: "Baking Bread", Summary: "Flour, water, yeast and a hot oven for crusty loaves"},
			{ID: "b", Title: "Knife Skills", Summary: "Holding, sharpening and cutting safely in the kitchen"},
			{ID: "c", Title: "Soups and Stocks", Summary: "Simmering bones and vegetables into a rich base"},
		},
	}
}

func TestTraverse_HybridThresholdVetoIsLogged(t *testing.T) {
	relevant := domain.JudgeFunc(func(context.Context, domain.JudgeRequest) domain.Judgment {
		return domain.Judgment{Relevant: true, Confidence: 0.9}
	})
	f, err := filter.New(filter.DefaultConfig())
	require.NoError(t, err)
	nav := New(relevance.New(relevance.DefaultConfig(), nil), f, relevant)

	res, err := nav.Traverse(context.Background(), cookingHandbook(), "quantum physics entanglement", Options{MaxDepth: 1, Mode: mode.Hybrid})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(res.Rejected))

	confident, uncertain := res.Log.Rejections()
	rejected := map[string]bool{}
	for _, r := range append(confident, uncertain...) {
		rejected[r.NodeID] = true
		assert.Contains(t, r.Reason, "threshold")
	}
	for _, n := range res.Rejected {
		assert.True(t, rejected[n.ID], "rejection of %s missing from the log", n.ID)
	}
	assert.Contains(t, f.Report(res.Log, 10), "Uncertain rejections (confidence <= 0.8): 3")
}

func TestTraverse_LogAgreesWithResult(t *testing.T) {
	judge := domain.JudgeFunc(func(_ context.Context, req domain.JudgeRequest) domain.Judgment {
		return domain.Judgment{Relevant: strings.Contains(req.Node.Title, "Function"), Confidence: 0.9}
	})
	for _, m := range []mode.Mode{mode.Filter, mode.Model, mode.Hybrid} {
		t.Run(string(m), func(t *testing.T) {
			res, err := newNavigator(t, judge).Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 3, MaxBranches: 3, Mode: m})
			require.NoError(t, err)

			verdicts := map[string]bool{}
			for _, r := range res.Log.Records() {
				verdicts[r.NodeID] = r.IsRelevant
			}
			recovered := map[string]bool{}
			for _, n := range res.Recovered {
				recovered[n.ID] = true
			}
			for _, n := range res.Rejected {
				v, ok := verdicts[n.ID]
				assert.True(t, ok, "no record for rejected %s", n.ID)
				assert.False(t, v, "rejected %s logged as relevant", n.ID)
			}
			for _, n := range res.Selected[1:] {
				if recovered[n.ID] {
					continue
				}
				assert.True(t, verdicts[n.ID], "selected %s not logged as relevant", n.ID)
			}
		})
	}
}

type thresholdCall struct{ selected, total int }

// recordingDecider captures AdjustThreshold arguments.
type recordingDecider struct {
	*filter.Filter
	calls []thresholdCall
}

func (d *recordingDecider) AdjustThreshold(numSelected, numTotal, queryLength int) float64 {
	d.calls = append(d.calls, thresholdCall{numSelected, numTotal})
	return d.Filter.AdjustThreshold(numSelected, numTotal, queryLength)
}

func TestTraverse_ThresholdCountsGatedNodesOnly(t *testing.T) {
	f, err := filter.New(filter.DefaultConfig())
	require.NoError(t, err)
	dec := &recordingDecider{Filter: f}
	nav := New(relevance.New(relevance.DefaultConfig(), nil), dec, nil)

	res, err := nav.Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 2, MaxBranches: 3, Mode: mode.Model})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(dec.calls), 2)

	// pending siblings do not count as filtered out
	assert.Equal(t, thresholdCall{selected: 1, total: 1}, dec.calls[0])
	for _, c := range dec.calls[:len(dec.calls)-1] {
		assert.LessOrEqual(t, c.selected, c.total)
	}
	last := dec.calls[len(dec.calls)-1]
	assert.Equal(t, thresholdCall{selected: len(res.Selected), total: len(res.Visited)}, last)
}

type constEmbedder struct{ calls atomic.Int32 }

func (e *constEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	e.calls.Add(1)
	return domain.EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 1}, nil
}

func TestTraverse_EmbedsQueryOnce(t *testing.T) {
	docs, queries := &constEmbedder{}, &constEmbedder{}
	scorer := relevance.NewEmbeddingScorer(docs, nil).WithQueryEmbedder(queries)
	f, err := filter.New(filter.DefaultConfig())
	require.NoError(t, err)
	nav := New(relevance.New(relevance.DefaultConfig(), scorer), f, nil)

	res, err := nav.Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 2, MaxBranches: 3, Concurrency: 3})
	require.NoError(t, err)
	assert.Greater(t, len(res.Visited), 2)
	assert.Equal(t, int32(1), queries.calls.Load())
	assert.GreaterOrEqual(t, docs.calls.Load(), int32(len(res.Visited)-1))
}

func TestTraverse_Concurrent(t *testing.T) {
	var calls atomic.Int32
	judge := domain.JudgeFunc(func(_ context.Context, req domain.JudgeRequest) domain.Judgment {
		calls.Add(1)
		return domain.Judgment{Relevant: strings.Contains(req.Node.Title, "Functions"), Confidence: 0.9}
	})
	nav := newNavigator(t, judge)

	seq, err := nav.Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 3, MaxBranches: 3})
	require.NoError(t, err)
	par, err := nav.Traverse(context.Background(), treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 3, MaxBranches: 3, Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, ids(seq.Selected), ids(par.Selected))
	assert.Equal(t, ids(seq.Rejected), ids(par.Rejected))
	assert.Equal(t, seq.Log.Len(), par.Log.Len())
	assert.Positive(t, calls.Load())
}

func TestTraverse_Errors(t *testing.T) {
	nav := newNavigator(t, nil)

	t.Run("nil root", func(t *testing.T) {
		_, err := nav.Traverse(context.Background(), nil, "q", Options{})
		assert.ErrorIs(t, err, domain.ErrInvalidTree)
	})

	t.Run("root without children", func(t *testing.T) {
		res, err := nav.Traverse(context.Background(), &tree.Node{ID: "solo"}, "q", Options{MaxDepth: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"solo"}, ids(res.Selected))
		assert.False(t, res.OverFiltered)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := nav.Traverse(ctx, treetest.JavaScriptGuide(), "q", Options{MaxDepth: 2})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("shared subtree is evaluated once", func(t *testing.T) {
		shared := &tree.Node{ID: "shared", Title: "Shared functions chapter", Summary: "JavaScript functions explained in depth"}
		root := &tree.Node{ID: "r", Title: "Root", Children: []*tree.Node{shared, shared}}
		res, err := nav.Traverse(context.Background(), root, "JavaScript functions", Options{MaxDepth: 2, MaxBranches: 3})
		require.NoError(t, err)
		assert.Len(t, res.Visited, 2)
	})
}

func TestTraverse_CallerOwnedLog(t *testing.T) {
	log := decision.NewLog()
	ctx := decision.ContextWithLog(context.Background(), log)
	res, err := newNavigator(t, nil).Traverse(ctx, treetest.JavaScriptGuide(), "JavaScript functions", Options{MaxDepth: 2, MaxBranches: 2})
	require.NoError(t, err)
	assert.Same(t, log, res.Log)
	assert.Equal(t, 4, log.Len())
}

func TestComplexity(t *testing.T) {
	assert.Contains(t, Complexity(), "O(b^d)")
}
