// Package retrieval stores document trees and runs relevance-gated traversals over them.
package retrieval

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	"github.com/kailas-cloud/treerag/internal/domain/mode"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/logger"
	"github.com/kailas-cloud/treerag/internal/metrics"
	"github.com/kailas-cloud/treerag/internal/parser"
	"github.com/kailas-cloud/treerag/internal/usecase/navigator"
)

// MaxQueryBytes bounds the length of a retrieval query.
const MaxQueryBytes = 4096

// Config holds traversal defaults applied when a request leaves a field empty.
type Config struct {
	MaxDepth    int
	MaxBranches int
	Mode        mode.Mode
	Concurrency int
	ReportLimit int
}

// Request describes one retrieval.
// Nil MaxDepth and zero MaxBranches fall back to the service defaults.
type Request struct {
	Query         string
	MaxDepth      *int
	MaxBranches   int
	Mode          mode.Mode
	IncludeReport bool
}

// Response is the outcome of one retrieval.
type Response struct {
	Result *navigator.Result
	Report string
}

// Explanation is the relevance breakdown of one node.
type Explanation struct {
	NodeID     string
	Depth      int
	Score      float64
	Components rel.Components
	Text       string
}

// Service handles document trees and traversals over them.
type Service struct {
	trees     TreeRepository
	traverser Traverser
	scorer    Scorer
	reporter  Reporter
	audit     AuditStore
	cfg       Config
}

// New creates a retrieval service. Audit persistence is off until WithAudit is called.
func New(trees TreeRepository, traverser Traverser, scorer Scorer, reporter Reporter, cfg Config) *Service {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = navigator.DefaultMaxDepth
	}
	if cfg.MaxBranches <= 0 {
		cfg.MaxBranches = navigator.DefaultMaxBranches
	}
	cfg.Mode = cfg.Mode.OrDefault()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		trees:     trees,
		traverser: traverser,
		scorer:    scorer,
		reporter:  reporter,
		cfg:       cfg,
	}
}

// WithAudit enables persistence of decision logs.
func (s *Service) WithAudit(a AuditStore) *Service {
	s.audit = a
	return s
}

// PutTree assigns missing ids, validates and stores the tree of a document.
// Returns true if the document was created, false if replaced.
func (s *Service) PutTree(ctx context.Context, docID string, root *tree.Node) (bool, error) {
	if strings.TrimSpace(docID) == "" {
		return false, fmt.Errorf("%w: empty document id", domain.ErrInvalidTree)
	}
	tree.AssignIDs(root)
	if err := tree.Validate(root); err != nil {
		return false, err
	}
	created, err := s.trees.Put(ctx, docID, root)
	if err != nil {
		return false, fmt.Errorf("put tree: %w", err)
	}
	return created, nil
}

// ImportMarkdown builds a tree from a Markdown source and stores it.
func (s *Service) ImportMarkdown(ctx context.Context, docID string, r io.Reader) (*tree.Node, bool, error) {
	root, err := parser.ParseMarkdown(r, docID)
	if err != nil {
		return nil, false, fmt.Errorf("parse markdown: %w", err)
	}
	created, err := s.PutTree(ctx, docID, root)
	if err != nil {
		return nil, false, err
	}
	return root, created, nil
}

// GetTree returns the tree of a document.
func (s *Service) GetTree(ctx context.Context, docID string) (*tree.Node, error) {
	root, err := s.trees.Get(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	return root, nil
}

// DeleteTree removes the tree of a document.
func (s *Service) DeleteTree(ctx context.Context, docID string) error {
	if err := s.trees.Delete(ctx, docID); err != nil {
		return fmt.Errorf("delete tree: %w", err)
	}
	return nil
}

// ListDocuments returns the ids of all stored documents.
func (s *Service) ListDocuments(ctx context.Context) ([]string, error) {
	ids, err := s.trees.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return ids, nil
}

// Retrieve walks the tree of a document and returns the nodes relevant to the query.
func (s *Service) Retrieve(ctx context.Context, docID string, req Request) (Response, error) {
	query, err := normalizeQuery(req.Query)
	if err != nil {
		return Response{}, err
	}
	opts, err := s.options(req)
	if err != nil {
		return Response{}, err
	}

	root, err := s.trees.Get(ctx, docID)
	if err != nil {
		return Response{}, fmt.Errorf("get tree: %w", err)
	}

	log := decision.NewLog()
	ctx = decision.ContextWithLog(ctx, log)

	modeLabel := string(opts.Mode)
	start := time.Now()
	res, err := s.traverser.Traverse(ctx, root, query, opts)
	metrics.TraversalDuration.WithLabelValues(modeLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TraversalsTotal.WithLabelValues(modeLabel, "error").Inc()
		return Response{}, fmt.Errorf("traverse: %w", err)
	}
	metrics.TraversalsTotal.WithLabelValues(modeLabel, "success").Inc()
	observeNodes(res)

	if res.OverFiltered {
		metrics.OverFilteringTotal.Inc()
		logger.FromContext(ctx).Info("Over-filtering detected, nodes recovered",
			zap.String("document_id", docID),
			zap.String("traversal_id", res.TraversalID.String()),
			zap.Int("recovered", len(res.Recovered)),
		)
	}

	s.record(ctx, docID, query, opts.Mode, res)

	resp := Response{Result: res}
	if req.IncludeReport {
		resp.Report = s.reporter.Report(res.Log, s.cfg.ReportLimit) + "\n" + navigator.Complexity()
	}
	return resp, nil
}

// Explain returns the relevance breakdown of one node of a document.
func (s *Service) Explain(ctx context.Context, docID, nodeID, query string) (Explanation, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return Explanation{}, err
	}
	root, err := s.trees.Get(ctx, docID)
	if err != nil {
		return Explanation{}, fmt.Errorf("get tree: %w", err)
	}

	path, ok := root.Path(nodeID)
	if !ok {
		return Explanation{}, fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
	}
	node := path[len(path)-1]
	depth := len(path) - 1
	var parent *tree.Node
	if depth > 0 {
		parent = path[depth-1]
	}

	score, components := s.scorer.Score(ctx, node, query, depth, parent)
	return Explanation{
		NodeID:     node.ID,
		Depth:      depth,
		Score:      score,
		Components: components,
		Text:       s.scorer.Explain(ctx, node, query, depth, parent),
	}, nil
}

// Decisions returns an audited traversal and its decision records.
func (s *Service) Decisions(ctx context.Context, traversalID uuid.UUID) (decision.Summary, []decision.Record, error) {
	if s.audit == nil {
		return decision.Summary{}, nil, fmt.Errorf("audit disabled: %w", domain.ErrNotFound)
	}
	summary, records, err := s.audit.Get(ctx, traversalID)
	if err != nil {
		return decision.Summary{}, nil, fmt.Errorf("get decisions: %w", err)
	}
	return summary, records, nil
}

func (s *Service) options(req Request) (navigator.Options, error) {
	opts := navigator.Options{
		MaxDepth:    s.cfg.MaxDepth,
		MaxBranches: s.cfg.MaxBranches,
		Mode:        s.cfg.Mode,
		Concurrency: s.cfg.Concurrency,
	}
	if req.MaxDepth != nil {
		if *req.MaxDepth < 0 {
			return navigator.Options{}, fmt.Errorf("%w: max_depth must be >= 0", domain.ErrInvalidQuery)
		}
		opts.MaxDepth = *req.MaxDepth
	}
	if req.MaxBranches > 0 {
		opts.MaxBranches = req.MaxBranches
	}
	if req.Mode != "" {
		if !req.Mode.IsValid() {
			return navigator.Options{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, req.Mode)
		}
		opts.Mode = req.Mode
	}
	return opts, nil
}

// record persists the decision log. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, docID, query string, m mode.Mode, res *navigator.Result) {
	if s.audit == nil {
		return
	}
	summary := decision.Summary{
		TraversalID:  res.TraversalID,
		DocumentID:   docID,
		Query:        query,
		Mode:         string(m),
		Visited:      len(res.Visited),
		Selected:     len(res.Selected),
		Recovered:    len(res.Recovered),
		OverFiltered: res.OverFiltered,
		Threshold:    res.Threshold,
	}
	if err := s.audit.Record(ctx, summary, res.Log.Records()); err != nil {
		logger.FromContext(ctx).Warn("Failed to persist decision log",
			zap.String("traversal_id", res.TraversalID.String()),
			zap.Error(err),
		)
	}
}

func observeNodes(res *navigator.Result) {
	metrics.TraversalNodes.WithLabelValues("visited").Observe(float64(len(res.Visited)))
	metrics.TraversalNodes.WithLabelValues("selected").Observe(float64(len(res.Selected)))
	metrics.TraversalNodes.WithLabelValues("rejected").Observe(float64(len(res.Rejected)))
	metrics.TraversalNodes.WithLabelValues("recovered").Observe(float64(len(res.Recovered)))
}

func normalizeQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if len(q) > MaxQueryBytes {
		return "", fmt.Errorf("%w: query exceeds %d bytes", domain.ErrInvalidQuery, MaxQueryBytes)
	}
	return q, nil
}
