package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/treerag/internal/db"
	"github.com/kailas-cloud/treerag/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	var (
		setKey string
		setTTL time.Duration
	)
	ms.setFn = func(_ context.Context, key string, _ []byte, ttl time.Duration) error {
		setKey, setTTL = key, ttl
		return nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !strings.HasPrefix(setKey, "treerag:emb_cache:") {
		t.Fatalf("expected cache put under prefix, got key %q", setKey)
	}
	if setTTL != time.Hour {
		t.Errorf("expected ttl 1h, got %v", setTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.calls != 0 {
		t.Errorf("expected inner not called, got %d calls", inner.calls)
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errStoreDown
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		return errStoreDown
	}

	result, err := ce.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("cache failures must not fail embedding: %v", err)
	}
	if result.Embedding[0] != 1 {
		t.Errorf("unexpected vector: %v", result.Embedding)
	}
}

func TestEmbed_CorruptCacheEntry(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.7}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}

	result, err := ce.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 || result.Embedding[0] != 0.7 {
		t.Errorf("expected inner result on corrupt entry, got %v (calls=%d)", result.Embedding, inner.calls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, _ := newTestCachedEmbedder(t, inner)

	_, err := ce.Embed(context.Background(), "test text")
	if err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	ce, _ := newTestCachedEmbedder(t, &mockEmbedder{})
	if ce.cacheKey("a") != ce.cacheKey("a") {
		t.Fatal("expected stable key")
	}
	if ce.cacheKey("a") == ce.cacheKey("b") {
		t.Fatal("expected distinct keys")
	}
}

func TestHealthCheck_Delegates(t *testing.T) {
	inner := &mockEmbedder{healthErr: errors.New("unhealthy")}
	ce, _ := newTestCachedEmbedder(t, inner)
	if err := ce.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected inner health error")
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated data")
	}
}
