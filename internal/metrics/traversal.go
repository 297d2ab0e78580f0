package metrics

import "github.com/prometheus/client_golang/prometheus"

// Traversal Prometheus metrics.
var (
	TraversalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treerag",
			Name:      "traversals_total",
			Help:      "Total number of tree traversals",
		},
		[]string{"mode", "status"},
	)

	TraversalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treerag",
			Name:      "traversal_duration_seconds",
			Help:      "Tree traversal duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	TraversalNodes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treerag",
			Name:      "traversal_nodes",
			Help:      "Nodes per traversal by outcome",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
		},
		[]string{"outcome"}, // "visited" / "selected" / "rejected" / "recovered"
	)

	OverFilteringTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "treerag",
			Name:      "over_filtering_total",
			Help:      "Traversals in which over-filtering recovery triggered",
		},
	)

	JudgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treerag",
			Name:      "judge_requests_total",
			Help:      "Total number of relevance judge requests",
		},
		[]string{"provider", "model", "status"},
	)

	JudgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treerag",
			Name:      "judge_request_duration_seconds",
			Help:      "Relevance judge request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	JudgeVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treerag",
			Name:      "judge_verdicts_total",
			Help:      "Relevance judge verdicts",
		},
		[]string{"verdict"}, // "relevant" / "irrelevant" / "failed"
	)
)

var (
	traversalMetricsRegistered bool
	judgeMetricsRegistered     bool
)

// RegisterTraversalMetrics registers Prometheus traversal metrics. Must be called once from main.
func RegisterTraversalMetrics() {
	if traversalMetricsRegistered {
		return
	}
	prometheus.MustRegister(TraversalsTotal)
	prometheus.MustRegister(TraversalDuration)
	prometheus.MustRegister(TraversalNodes)
	prometheus.MustRegister(OverFilteringTotal)
	traversalMetricsRegistered = true
}

// RegisterJudgeMetrics registers Prometheus judge metrics. Must be called once from main.
func RegisterJudgeMetrics() {
	if judgeMetricsRegistered {
		return
	}
	prometheus.MustRegister(JudgeRequestsTotal)
	prometheus.MustRegister(JudgeRequestDuration)
	prometheus.MustRegister(JudgeVerdictsTotal)
	judgeMetricsRegistered = true
}
