package treerag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/treerag/internal/domain"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/usecase/filter"
	"github.com/kailas-cloud/treerag/internal/usecase/navigator"
	"github.com/kailas-cloud/treerag/internal/usecase/relevance"
)

// Внутренние интерфейсы для подмены в тестах.
type traverser interface {
	Traverse(ctx context.Context, root *Node, query string, opts navigator.Options) (*navigator.Result, error)
}

type scorer interface {
	Score(ctx context.Context, node *Node, query string, depth int, parent *Node) (float64, rel.Components)
	Explain(ctx context.Context, node *Node, query string, depth int, parent *Node) string
}

// Client is the treerag SDK entry point. Safe for concurrent use.
type Client struct {
	model     scorer
	filter    *filter.Filter
	navigator traverser
	mode      Mode
	conc      int
	obs       *observer
}

// New builds a Client from options. Weights, filter settings and mode are validated here.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	weights, err := rel.NewWeights(cfg.semanticWeight, cfg.structuralWeight, cfg.contextualWeight)
	if err != nil {
		return nil, fmt.Errorf("treerag: %w", err)
	}
	f, err := filter.New(filter.Config{
		LLMWeight:           cfg.llmWeight,
		KeywordWeight:       cfg.keywordWeight,
		ConfidenceThreshold: cfg.threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("treerag: %w", err)
	}
	cfg.mode = cfg.mode.OrDefault()
	if !cfg.mode.IsValid() {
		return nil, fmt.Errorf("treerag: %w: %q", domain.ErrInvalidMode, cfg.mode)
	}

	var semantic relevance.SemanticScorer
	if cfg.embedder != nil {
		semantic = relevance.NewEmbeddingScorer(&embedderAdapter{inner: cfg.embedder}, nil)
	}
	model := relevance.New(relevance.Config{Weights: weights}, semantic)

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	conc := cfg.concurrency
	if conc < 1 {
		conc = 1
	}

	return &Client{
		model:     model,
		filter:    f,
		navigator: navigator.New(model, f, cfg.judge),
		mode:      cfg.mode,
		conc:      conc,
		obs:       obs,
	}, nil
}

// Traverse walks root and returns the nodes relevant to query.
// maxDepth 0 selects the root only; maxBranches <= 0 means 3.
// A blank query or a negative maxDepth fails with ErrInvalidQuery before any
// judge call, matching the HTTP API. Queries without usable keywords are
// accepted and scored with the neutral keyword default.
func (c *Client) Traverse(ctx context.Context, root *Node, query string, maxDepth, maxBranches int) (*Result, error) {
	start := time.Now()
	res, err := c.traverse(ctx, root, query, maxDepth, maxBranches)
	c.obs.observe("traverse", start, err)
	if err == nil && res.OverFiltered {
		c.obs.overFiltered(len(res.Recovered))
	}
	return res, err
}

func (c *Client) traverse(ctx context.Context, root *Node, query string, maxDepth, maxBranches int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("treerag: %w: query is empty", domain.ErrInvalidQuery)
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("treerag: %w: max depth must be >= 0", domain.ErrInvalidQuery)
	}

	res, err := c.navigator.Traverse(ctx, root, query, navigator.Options{
		MaxDepth:    maxDepth,
		MaxBranches: maxBranches,
		Mode:        c.mode,
		Concurrency: c.conc,
	})
	if err != nil {
		return nil, fmt.Errorf("treerag: %w", err)
	}
	return &Result{
		TraversalID:  res.TraversalID.String(),
		Selected:     res.Selected,
		Visited:      res.Visited,
		Rejected:     res.Rejected,
		Recovered:    res.Recovered,
		OverFiltered: res.OverFiltered,
		Threshold:    res.Threshold,
		Decisions:    res.Log.Records(),
		log:          res.Log,
	}, nil
}

// Score returns the composite relevance of node and its components.
// parent is nil for the root.
func (c *Client) Score(ctx context.Context, node *Node, query string, depth int, parent *Node) (float64, Components) {
	start := time.Now()
	score, comp := c.model.Score(ctx, node, query, depth, parent)
	c.obs.observe("score", start, nil)
	return score, comp
}

// Explain renders a human-readable breakdown of the score of node.
func (c *Client) Explain(ctx context.Context, node *Node, query string, depth int, parent *Node) string {
	start := time.Now()
	out := c.model.Explain(ctx, node, query, depth, parent)
	c.obs.observe("explain", start, nil)
	return out
}

// Report summarizes the decisions of a traversal. limit caps the lines listed
// for confident and for uncertain rejections separately; limit <= 0 lists all.
func (c *Client) Report(res *Result, limit int) string {
	if res == nil {
		return c.filter.Report(nil, limit)
	}
	return c.filter.Report(res.log, limit)
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", errors.Join(domain.ErrEmbeddingProviderError, err))
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
