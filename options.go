package treerag

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	semanticWeight   float64
	structuralWeight float64
	contextualWeight float64

	llmWeight     float64
	keywordWeight float64
	threshold     float64

	mode        Mode
	concurrency int

	judge    Judge
	embedder Embedder

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		semanticWeight:   0.7,
		structuralWeight: 0.2,
		contextualWeight: 0.1,
		llmWeight:        0.7,
		keywordWeight:    0.3,
		threshold:        0.6,
		mode:             ModeFilter,
		concurrency:      1,
	}
}

// WithWeights sets the relevance model weights. They must be non-negative and sum to 1.
// Default: 0.7 semantic, 0.2 structural, 0.1 contextual.
func WithWeights(semantic, structural, contextual float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.semanticWeight = semantic
		c.structuralWeight = structural
		c.contextualWeight = contextual
	})
}

// WithFilterWeights sets how the judge and keyword signals combine in the filter.
// Default: 0.7 judge, 0.3 keywords.
func WithFilterWeights(llm, keyword float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.llmWeight = llm
		c.keywordWeight = keyword
	})
}

// WithThreshold sets the base confidence threshold of the filter. Default: 0.6.
func WithThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.threshold = t
	})
}

// WithMode selects the gate. Default: ModeFilter.
func WithMode(m Mode) Option {
	return optionFunc(func(c *clientConfig) {
		c.mode = m
	})
}

// WithConcurrency judges up to n siblings in parallel. Default: 1.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.concurrency = n
	})
}

// WithJudge sets the relevance judge. Without one the filter relies on keywords.
func WithJudge(j Judge) Option {
	return optionFunc(func(c *clientConfig) {
		c.judge = j
	})
}

// WithEmbedder enables embedding similarity as the semantic signal.
// Without one the semantic signal is keyword overlap.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithMetrics registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithMetrics(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
