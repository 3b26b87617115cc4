package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/db"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	vec, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if !setCalled {
		t.Fatal("expected SET to be called for cache put")
	}
	if inner.embedCalls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.embedCalls)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{9, 9, 9}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	cached := vectorToCacheBytes([]float32{0.5, -1.25})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	vec, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != -1.25 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if inner.embedCalls != 0 {
		t.Fatal("expected inner embedder to be skipped on hit")
	}
}

func TestEmbed_StoreFailuresAreSoft(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{1, 2}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection reset")
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		return errors.New("connection reset")
	}

	vec, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("store failure must not fail the embed: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbed_CorruptCacheEntryFallsThrough(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{1, 2}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil // not a multiple of 4
	}

	vec, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.embedCalls != 1 {
		t.Fatal("expected inner embedder to recompute")
	}
	if len(vec) != 2 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbed_InnerErrorPropagates(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("backend down")}
	ce, _ := newTestCachedEmbedder(t, inner)

	_, err := ce.Embed(context.Background(), "test text")
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected inner error, got %v", err)
	}
}

func TestEmbedBatch_PartialHits(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{7, 7}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	cached := vectorToCacheBytes([]float32{1, 1})
	hitKey := ce.cacheKey("already cached")
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if key == hitKey {
			return cached, nil
		}
		return nil, db.ErrKeyNotFound
	}

	vectors, err := ce.EmbedBatch(ctx, []string{"already cached", "fresh one", "another fresh"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 {
		t.Fatalf("expected cached vector first, got %v", vectors[0])
	}
	if vectors[1][0] != 7 || vectors[2][0] != 7 {
		t.Fatalf("expected computed vectors, got %v %v", vectors[1], vectors[2])
	}
	if inner.batchCalls != 1 {
		t.Fatalf("expected a single inner batch call, got %d", inner.batchCalls)
	}
}

func TestEmbedBatch_AllHitsSkipInner(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{7, 7}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{1, 1})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	vectors, err := ce.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 0 {
		t.Fatal("expected inner batch to be skipped")
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
}

func TestPutToCache_UsesTTLWhenConfigured(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{1}}
	ms := &mockKVStore{}
	ce := New(inner, ms, time.Hour, nil, zap.NewNop())

	var plainSet bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		plainSet = true
		return nil
	}

	if _, err := ce.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// mockKVStore routes SetWithTTL through setFn, so observing the call is
	// enough; the TTL branch is chosen because ttl > 0.
	if !plainSet {
		t.Fatal("expected cache put")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e7}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d != %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("value mismatch at %d: %v != %v", i, in[i], out[i])
		}
	}
}
