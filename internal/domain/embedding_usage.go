package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// Usage collects provider usage for a single HTTP request.
// The handler puts a pointer into the context before calling the service;
// scorers and judges write to it, possibly from several goroutines;
// the handler reads it for response headers.
type Usage struct {
	embeddingTokens atomic.Int64
	embeddingCalls  atomic.Int64
	judgeCalls      atomic.Int64
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records one embedding call and its tokens (0 on a cache hit).
func (u *Usage) AddEmbeddingTokens(n int) {
	if u == nil {
		return
	}
	u.embeddingTokens.Add(int64(n))
	u.embeddingCalls.Add(1)
}

// AddJudgeCall records one relevance judge call.
func (u *Usage) AddJudgeCall() {
	if u != nil {
		u.judgeCalls.Add(1)
	}
}

// EmbeddingTokens returns the tokens consumed by embedding calls.
func (u *Usage) EmbeddingTokens() int {
	if u == nil {
		return 0
	}
	return int(u.embeddingTokens.Load())
}

// EmbeddingUsed reports whether any embedding was requested, even from cache.
func (u *Usage) EmbeddingUsed() bool {
	return u != nil && u.embeddingCalls.Load() > 0
}

// JudgeCalls returns the number of judge calls.
func (u *Usage) JudgeCalls() int {
	if u == nil {
		return 0
	}
	return int(u.judgeCalls.Load())
}
