package hybrid

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/engine/statistical"
)

// mockBackend is a scriptable preferred backend.
type mockBackend struct {
	name      string
	dims      int
	initDelay time.Duration
	initErr   error
	embedErr  error
	// embedLen overrides the returned vector length; 0 means dims.
	embedLen int

	initCalls  atomic.Int32
	embedCalls atomic.Int32
	ready      atomic.Bool
}

func (m *mockBackend) Name() string    { return m.name }
func (m *mockBackend) Dimensions() int { return m.dims }

func (m *mockBackend) Initialize(ctx context.Context) error {
	m.initCalls.Add(1)
	if m.initDelay > 0 {
		select {
		case <-time.After(m.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.initErr != nil {
		return m.initErr
	}
	m.ready.Store(true)
	return nil
}

func (m *mockBackend) IsReady() bool { return m.ready.Load() }

func (m *mockBackend) Embed(_ context.Context, _ string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	n := m.embedLen
	if n == 0 {
		n = m.dims
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = 0.5
	}
	return vec, nil
}

func (m *mockBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vec, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (m *mockBackend) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{Name: m.name, Model: "mock", Dimensions: m.dims}
}

func (m *mockBackend) CacheStats() domain.CacheStats { return domain.CacheStats{} }
func (m *mockBackend) ClearCache()                   {}

func (m *mockBackend) Cleanup() error {
	m.ready.Store(false)
	return nil
}

// failingFallback simulates an unusable engine for fatal-path tests.
type failingFallback struct {
	*statistical.Engine
	embedErr error
}

func (f *failingFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.Engine.Embed(ctx, text)
}

func (f *failingFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.Engine.EmbedBatch(ctx, texts)
}

// recordingNotifier captures fire-and-forget messages.
type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) {
	n.messages = append(n.messages, message)
}

func newTestEngine(t *testing.T, dims int) *statistical.Engine {
	t.Helper()
	return statistical.New(statistical.Config{Dimensions: dims}, zap.NewNop())
}

func newTestOrchestrator(
	t *testing.T, fallback FallbackEngine, cfg Config,
) *Orchestrator {
	t.Helper()
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 50 * time.Millisecond
	}
	return New(fallback, cfg, zap.NewNop())
}
