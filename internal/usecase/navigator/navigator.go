package navigator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	"github.com/kailas-cloud/treerag/internal/domain/mode"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/logger"
	"github.com/kailas-cloud/treerag/internal/usecase/relevance"
)

const (
	// DefaultMaxDepth bounds how deep the walk expands.
	DefaultMaxDepth = 5
	// DefaultMaxBranches bounds how many children of one node are evaluated.
	DefaultMaxBranches = 3

	breadcrumbSep = " > "
)

// Options control a single traversal.
// MaxDepth 0 selects the root only; negative values are treated as 0.
// MaxBranches <= 0 falls back to DefaultMaxBranches.
type Options struct {
	MaxDepth    int
	MaxBranches int
	Mode        mode.Mode
	Concurrency int
}

// Result is the outcome of one traversal.
type Result struct {
	TraversalID  uuid.UUID
	Selected     []*tree.Node
	Visited      []*tree.Node
	Rejected     []*tree.Node
	Recovered    []*tree.Node
	OverFiltered bool
	Threshold    float64
	Log          *decision.Log
}

// Navigator walks a document tree, expanding only nodes the gate keeps.
type Navigator struct {
	ranker  Ranker
	decider Decider
	judge   domain.Judge
}

// New creates a Navigator. judge may be nil.
func New(ranker Ranker, decider Decider, judge domain.Judge) *Navigator {
	return &Navigator{ranker: ranker, decider: decider, judge: judge}
}

type frame struct {
	node       *tree.Node
	depth      int
	breadcrumb string
}

type walk struct {
	query    string
	opts     Options
	log      *decision.Log
	visited  map[*tree.Node]bool
	result   *Result
	queryLen int
}

// Traverse selects the nodes of root relevant to query.
// Decisions go to the log attached to ctx, or to a fresh one returned in the result.
func (n *Navigator) Traverse(ctx context.Context, root *tree.Node, query string, opts Options) (*Result, error) {
	if root == nil {
		return nil, fmt.Errorf("traverse: %w: nil root", domain.ErrInvalidTree)
	}
	opts = normalize(opts)
	if !opts.Mode.IsValid() {
		return nil, fmt.Errorf("traverse: unsupported mode %q", opts.Mode)
	}

	ctx = relevance.ContextWithQueryCache(ctx)
	log := decision.LogFromContext(ctx)
	if log == nil {
		log = decision.NewLog()
		ctx = decision.ContextWithLog(ctx, log)
	}

	w := &walk{
		query:    query,
		opts:     opts,
		log:      log,
		visited:  map[*tree.Node]bool{root: true},
		queryLen: rel.QueryLength(query),
		result: &Result{
			TraversalID: uuid.New(),
			Selected:    []*tree.Node{root},
			Visited:     []*tree.Node{root},
			Log:         log,
		},
	}

	stack := []frame{{node: root, depth: 0, breadcrumb: root.Title}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth >= opts.MaxDepth || f.node.IsLeaf() {
			continue
		}

		batch := n.candidates(ctx, w, f)
		accepted := n.evaluate(ctx, w, f, batch)

		var keep []frame
		for i, r := range batch {
			if !accepted[i] {
				w.result.Rejected = append(w.result.Rejected, r.Node)
				continue
			}
			w.result.Selected = append(w.result.Selected, r.Node)
			keep = append(keep, frame{
				node:       r.Node,
				depth:      f.depth + 1,
				breadcrumb: joinBreadcrumb(f.breadcrumb, r.Node.Title),
			})
		}
		for i := len(keep) - 1; i >= 0; i-- {
			stack = append(stack, keep[i])
		}
	}

	n.recoverFalseNegatives(ctx, w)
	w.result.Threshold = n.decider.AdjustThreshold(len(w.result.Selected), len(w.result.Visited), w.queryLen)

	logger.FromContext(ctx).Debug("Traversal completed",
		zap.String("traversal_id", w.result.TraversalID.String()),
		zap.String("mode", string(opts.Mode)),
		zap.Int("visited", len(w.result.Visited)),
		zap.Int("selected", len(w.result.Selected)),
		zap.Int("rejected", len(w.result.Rejected)),
		zap.Int("recovered", len(w.result.Recovered)),
	)
	return w.result, nil
}

func normalize(opts Options) Options {
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.MaxBranches <= 0 {
		opts.MaxBranches = DefaultMaxBranches
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	opts.Mode = opts.Mode.OrDefault()
	return opts
}

// candidates ranks the unvisited children of f and keeps the best MaxBranches.
func (n *Navigator) candidates(ctx context.Context, w *walk, f frame) []relevance.Ranked {
	children := make([]*tree.Node, 0, len(f.node.Children))
	seen := make(map[*tree.Node]bool, len(f.node.Children))
	for _, c := range f.node.Children {
		if c == nil || w.visited[c] || seen[c] {
			continue
		}
		seen[c] = true
		children = append(children, c)
	}
	ranked := n.ranker.Rank(ctx, children, w.query, f.node, f.depth+1)
	if len(ranked) > w.opts.MaxBranches {
		ranked = ranked[:w.opts.MaxBranches]
	}
	for _, r := range ranked {
		w.visited[r.Node] = true
		w.result.Visited = append(w.result.Visited, r.Node)
	}
	return ranked
}

// evaluate gates a batch of siblings. Results are in batch order.
// The threshold only counts nodes that have already been gated.
func (n *Navigator) evaluate(ctx context.Context, w *walk, f frame, batch []relevance.Ranked) []bool {
	gated := len(w.result.Selected) + len(w.result.Rejected)
	threshold := n.decider.AdjustThreshold(len(w.result.Selected), gated, w.queryLen)
	accepted := make([]bool, len(batch))

	if w.opts.Concurrency == 1 || len(batch) < 2 {
		for i, r := range batch {
			accepted[i] = n.gate(ctx, w, f, r, threshold)
		}
		return accepted
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.opts.Concurrency)
	for i, r := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			accepted[i] = n.gate(ctx, w, f, r, threshold)
		}()
	}
	wg.Wait()
	return accepted
}

func (n *Navigator) gate(ctx context.Context, w *walk, f frame, r relevance.Ranked, threshold float64) bool {
	depth := f.depth + 1
	var d decision.Decision
	switch w.opts.Mode {
	case mode.Model:
		d = decision.Decision{
			IsRelevant:    r.Score >= threshold,
			Confidence:    r.Score,
			Reason:        thresholdReason(r.Score, threshold),
			CombinedScore: decision.Score(r.Score),
		}
	case mode.Hybrid:
		d = n.decider.Evaluate(ctx, r.Node, w.query, f.breadcrumb, depth, n.judge)
		if d.IsRelevant && r.Score < threshold {
			d.IsRelevant = false
			d.Reason = thresholdReason(r.Score, threshold)
		}
	default:
		d = n.decider.Evaluate(ctx, r.Node, w.query, f.breadcrumb, depth, n.judge)
	}
	w.log.Append(decision.NewRecord(r.Node.ID, r.Node.Title, depth, d))
	return d.IsRelevant
}

func thresholdReason(score, threshold float64) string {
	return fmt.Sprintf("relevance %.2f against threshold %.2f", score, threshold)
}

// recoverFalseNegatives runs over-filtering detection once the walk is done.
// Recovered nodes are selected but their subtrees are not walked.
func (n *Navigator) recoverFalseNegatives(ctx context.Context, w *walk) {
	nonRoot := w.result.Selected[1:]
	triggered, recovered := n.decider.DetectOverFiltering(nonRoot, w.result.Rejected, w.query)
	w.result.OverFiltered = triggered
	if !triggered {
		return
	}
	w.result.Recovered = recovered
	w.result.Selected = append(w.result.Selected, recovered...)
	w.log.AddRecovered(len(recovered))

	logger.FromContext(ctx).Info("Over-filtering detected",
		zap.String("traversal_id", w.result.TraversalID.String()),
		zap.Int("selected", len(nonRoot)),
		zap.Int("rejected", len(w.result.Rejected)),
		zap.Int("recovered", len(recovered)),
	)
}

func joinBreadcrumb(parent, title string) string {
	if parent == "" {
		return title
	}
	if title == "" {
		return parent
	}
	return parent + breadcrumbSep + title
}

// Complexity describes the cost of the walk in terms of branching factor b,
// depth limit d and tree size n.
func Complexity() string {
	var b strings.Builder
	b.WriteString("Time: O(b^d) node evaluations, bounded by O(n); each evaluation costs one judge call at most.\n")
	b.WriteString("Space: O(b*d) for the explicit stack plus O(n) for the visited set.\n")
	b.WriteString("Trade-off: pruning a rejected node drops its whole subtree, so early false negatives are " +
		"mitigated by over-filtering recovery rather than backtracking.\n")
	return b.String()
}
