// Package judge decorates relevance judges with timeouts, metrics and logging.
package judge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/metrics"
)

// InstrumentedJudge bounds each verdict by a timeout, contains panics of the
// inner judge and records verdict metrics.
// Transport metrics (requests, duration) are recorded in transport/openai.
type InstrumentedJudge struct {
	inner    domain.Judge
	provider string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewInstrumentedJudge wraps a judge. timeout <= 0 disables the per-call deadline.
func NewInstrumentedJudge(
	inner domain.Judge, provider, model string,
	timeout time.Duration, logger *zap.Logger,
) *InstrumentedJudge {
	return &InstrumentedJudge{
		inner:    inner,
		provider: provider,
		model:    model,
		timeout:  timeout,
		logger:   logger,
	}
}

// Judge implements domain.Judge.
func (j *InstrumentedJudge) Judge(ctx context.Context, req domain.JudgeRequest) (out domain.Judgment) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	domain.UsageFromContext(ctx).AddJudgeCall()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = domain.FailedJudgment(fmt.Errorf("judge panic: %v: %w", r, domain.ErrJudgeFailed))
		}
		j.observe(req, out, time.Since(start))
	}()

	out = j.inner.Judge(ctx, req)
	if out.Failed() && out.Err == nil {
		out.Err = fmt.Errorf("confidence %v outside [0,1]: %w", out.Confidence, domain.ErrMalformedJudgment)
	}
	return out
}

func (j *InstrumentedJudge) observe(req domain.JudgeRequest, out domain.Judgment, duration time.Duration) {
	nodeID := ""
	if req.Node != nil {
		nodeID = req.Node.ID
	}

	if out.Failed() {
		metrics.JudgeVerdictsTotal.WithLabelValues("failed").Inc()
		j.logger.Warn("Relevance judge failed",
			zap.String("provider", j.provider),
			zap.String("model", j.model),
			zap.String("node_id", nodeID),
			zap.Duration("duration", duration),
			zap.Error(out.Err),
		)
		return
	}

	verdict := "irrelevant"
	if out.Relevant {
		verdict = "relevant"
	}
	metrics.JudgeVerdictsTotal.WithLabelValues(verdict).Inc()
	j.logger.Debug("Relevance judge completed",
		zap.String("provider", j.provider),
		zap.String("model", j.model),
		zap.String("node_id", nodeID),
		zap.String("verdict", verdict),
		zap.Float64("confidence", out.Confidence),
		zap.Duration("duration", duration),
	)
}

// HealthCheck delegates to the inner judge when it supports health checks.
func (j *InstrumentedJudge) HealthCheck(ctx context.Context) error {
	if hc, ok := j.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
