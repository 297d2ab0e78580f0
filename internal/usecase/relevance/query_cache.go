package relevance

import (
	"context"
	"sync"

	"github.com/kailas-cloud/treerag/internal/domain"
)

type queryCacheKey struct{}

// queryCache holds query embeddings for the lifetime of one traversal.
type queryCache struct {
	mu      sync.Mutex
	results map[string]domain.EmbeddingResult
}

// ContextWithQueryCache attaches a query embedding cache to ctx.
// EmbeddingScorer then embeds each distinct query once per context.
func ContextWithQueryCache(ctx context.Context) context.Context {
	if _, ok := ctx.Value(queryCacheKey{}).(*queryCache); ok {
		return ctx
	}
	return context.WithValue(ctx, queryCacheKey{}, &queryCache{results: map[string]domain.EmbeddingResult{}})
}

// embedQuery returns the cached embedding of query or computes it once.
// The lock is held across the call so concurrent siblings wait for the first embedding.
// The second return value reports a cache hit.
func embedQuery(ctx context.Context, e domain.Embedder, query string) (domain.EmbeddingResult, bool, error) {
	c, ok := ctx.Value(queryCacheKey{}).(*queryCache)
	if !ok {
		r, err := e.Embed(ctx, query)
		return r, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.results[query]; ok {
		return r, true, nil
	}
	r, err := e.Embed(ctx, query)
	if err != nil {
		return domain.EmbeddingResult{}, false, err
	}
	c.results[query] = r
	return r, false, nil
}
