package filter

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
	"github.com/kailas-cloud/treerag/internal/logger"
)

// Decision reasons.
const (
	ReasonRoot              = "root node"
	ReasonSparse            = "sparse node: insufficient text to judge"
	ReasonStrongJudge       = "strong external judge match"
	ReasonStrongKeyword     = "strong keyword match"
	ReasonModerate          = "moderate match from multiple signals"
	ReasonJudgeWeakKeywords = "external judge suggests relevance but weak keyword signals"
	ReasonMinimal           = "minimal relevance signals"
)

const (
	sparseSummaryLen  = 20
	sparseTitleLen    = 10
	sparseConfidence  = 0.95
	minKeywordLen     = 3
	noKeywordsScore   = 0.3
	titleMatchWeight  = 0.4
	bodyMatchWeight   = 0.6
	relevantCutoff    = 0.5
	strongCutoff      = 0.7
	judgeRelevant     = 0.9
	judgeIrrelevant   = 0.1
	neutralScore      = 0.5
	failedConfidence  = 0.3
	strongKeywordConf = 1.0
	weakKeywordConf   = 0.3
)

// Config parameterizes the dual-stage filter.
type Config struct {
	LLMWeight           float64
	KeywordWeight       float64
	ConfidenceThreshold float64
}

// DefaultConfig returns 0.7 judge weight, 0.3 keyword weight and a 0.6 base threshold.
func DefaultConfig() Config {
	return Config{LLMWeight: 0.7, KeywordWeight: 0.3, ConfidenceThreshold: 0.6}
}

// Filter turns scores into keep/drop decisions. Stateless beyond configuration;
// decisions are appended to the log attached with decision.ContextWithLog.
type Filter struct {
	cfg Config
}

// New validates cfg and creates a Filter.
func New(cfg Config) (*Filter, error) {
	if math.IsNaN(cfg.LLMWeight) || math.IsNaN(cfg.KeywordWeight) || cfg.LLMWeight < 0 || cfg.KeywordWeight < 0 {
		return nil, fmt.Errorf("%w: negative filter weight", domain.ErrInvalidWeights)
	}
	if sum := cfg.LLMWeight + cfg.KeywordWeight; math.Abs(sum-1.0) > rel.SumTolerance {
		return nil, domain.NewWeightsError("filter", sum)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold %v outside [0,1]", domain.ErrInvalidWeights, cfg.ConfidenceThreshold)
	}
	return &Filter{cfg: cfg}, nil
}

// Config returns the filter configuration.
func (f *Filter) Config() Config { return f.cfg }

// Decide evaluates node against query and appends the decision to the log
// attached to ctx. judge may be nil. The root is never logged.
func (f *Filter) Decide(
	ctx context.Context, node *tree.Node, query, parentContext string, depth int, judge domain.Judge,
) decision.Decision {
	d := f.Evaluate(ctx, node, query, parentContext, depth, judge)
	if depth == 0 {
		return d
	}
	if log := decision.LogFromContext(ctx); log != nil {
		log.Append(decision.NewRecord(node.ID, node.Title, depth, d))
	}
	return d
}

// Evaluate is Decide without logging. judge may be nil.
func (f *Filter) Evaluate(
	ctx context.Context, node *tree.Node, query, parentContext string, depth int, judge domain.Judge,
) decision.Decision {
	if depth == 0 {
		return decision.Decision{IsRelevant: true, Confidence: 1.0, Reason: ReasonRoot}
	}

	if isSparse(node) {
		return decision.Decision{
			IsRelevant:    false,
			Confidence:    sparseConfidence,
			Reason:        ReasonSparse,
			LLMScore:      decision.Score(0),
			KeywordScore:  decision.Score(0),
			CombinedScore: decision.Score(0),
		}
	}

	llmScore, llmConf := f.judgeSignal(ctx, node, query, parentContext, judge)
	kwScore := KeywordScore(node, query)

	combined := rel.Clamp01(f.cfg.LLMWeight*llmScore + f.cfg.KeywordWeight*kwScore)
	kwConf := weakKeywordConf
	if kwScore > relevantCutoff {
		kwConf = strongKeywordConf
	}
	confidence := rel.Clamp01(f.cfg.LLMWeight*llmConf + f.cfg.KeywordWeight*kwConf)

	return decision.Decision{
		IsRelevant:    combined > relevantCutoff,
		Confidence:    confidence,
		Reason:        reason(combined, llmScore, kwScore),
		LLMScore:      decision.Score(llmScore),
		KeywordScore:  decision.Score(kwScore),
		CombinedScore: decision.Score(combined),
	}
}

func isSparse(node *tree.Node) bool {
	return utf8.RuneCountInString(node.Body()) < sparseSummaryLen &&
		utf8.RuneCountInString(node.Title) < sparseTitleLen
}

func (f *Filter) judgeSignal(
	ctx context.Context, node *tree.Node, query, parentContext string, judge domain.Judge,
) (score, confidence float64) {
	if judge == nil {
		return neutralScore, 0.0
	}
	j := callJudge(ctx, judge, domain.JudgeRequest{Node: node, Query: query, ParentContext: parentContext})
	if j.Failed() {
		logger.FromContext(ctx).Warn("Relevance judge failed, using neutral judgment",
			zap.String("node_id", node.ID),
			zap.Error(judgeErr(j)),
		)
		return neutralScore, failedConfidence
	}
	if j.Relevant {
		return judgeRelevant, j.Confidence
	}
	return judgeIrrelevant, j.Confidence
}

func callJudge(ctx context.Context, judge domain.Judge, req domain.JudgeRequest) (j domain.Judgment) {
	defer func() {
		if r := recover(); r != nil {
			j = domain.FailedJudgment(fmt.Errorf("%w: panic: %v", domain.ErrJudgeFailed, r))
		}
	}()
	return judge.Judge(ctx, req)
}

func judgeErr(j domain.Judgment) error {
	if j.Err != nil {
		return j.Err
	}
	return fmt.Errorf("%w: confidence %v", domain.ErrMalformedJudgment, j.Confidence)
}

// KeywordScore is the weighted share of query terms found in the title and body.
func KeywordScore(node *tree.Node, query string) float64 {
	terms := rel.Terms(query, minKeywordLen)
	if len(terms) == 0 {
		return noKeywordsScore
	}
	title := strings.ToLower(node.Title)
	body := strings.ToLower(node.Body())

	var inTitle, inBody int
	for _, t := range terms {
		if strings.Contains(title, t) {
			inTitle++
		}
		if strings.Contains(body, t) {
			inBody++
		}
	}
	n := float64(len(terms))
	titleRatio := math.Min(float64(inTitle)/n, 1.0)
	bodyRatio := math.Min(float64(inBody)/n, 1.0)
	return titleMatchWeight*titleRatio + bodyMatchWeight*bodyRatio
}

func reason(combined, llmScore, kwScore float64) string {
	switch {
	case combined > strongCutoff:
		if llmScore > kwScore {
			return ReasonStrongJudge
		}
		return ReasonStrongKeyword
	case combined > relevantCutoff:
		return ReasonModerate
	case llmScore > relevantCutoff:
		return ReasonJudgeWeakKeywords
	default:
		return ReasonMinimal
	}
}
