// Package openai implements the remote embedding backend on top of an
// OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/cache"
	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/metrics"
)

// BackendName identifies the backend in orchestrator state and metrics.
const BackendName = "remote"

const (
	// DefaultDimensions matches text-embedding-3-small.
	DefaultDimensions = 1536
	// DefaultMaxBatchSize is the API limit per embeddings request.
	DefaultMaxBatchSize = 100
	// DefaultBatchDelay is the fixed pause between consecutive batch requests,
	// the only built-in rate-limiting concession.
	DefaultBatchDelay = 100 * time.Millisecond
)

// Config holds the remote backend settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Dimensions   int
	MaxBatchSize int
	BatchDelay   time.Duration
	CacheSize    int
	Logger       *zap.Logger
}

// Backend embeds text via the remote embeddings API.
type Backend struct {
	client       *openai.Client
	model        openai.EmbeddingModel
	dimensions   int
	maxBatchSize int
	batchDelay   time.Duration
	logger       *zap.Logger
	cache        *cache.FIFO

	ready        atomic.Bool
	initializing atomic.Bool
}

var _ domain.Backend = (*Backend)(nil)

// New creates a remote backend. The API is not contacted until Initialize.
func New(cfg Config) *Backend {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > DefaultMaxBatchSize {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Backend{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        openai.EmbeddingModel(cfg.Model),
		dimensions:   cfg.Dimensions,
		maxBatchSize: cfg.MaxBatchSize,
		batchDelay:   cfg.BatchDelay,
		logger:       cfg.Logger,
		cache:        cache.NewFIFO(cfg.CacheSize),
	}
}

// Name implements domain.Backend.
func (b *Backend) Name() string { return BackendName }

// Dimensions implements domain.Backend.
func (b *Backend) Dimensions() int { return b.dimensions }

// Initialize verifies API availability via ListModels (free endpoint).
func (b *Backend) Initialize(ctx context.Context) error {
	if b.ready.Load() {
		return nil
	}
	if !b.initializing.CompareAndSwap(false, true) {
		return nil
	}
	defer b.initializing.Store(false)

	if _, err := b.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %v: %w", err, domain.ErrBackendUnavailable)
	}

	b.ready.Store(true)
	b.logger.Info("Remote backend initialized",
		zap.String("model", string(b.model)),
		zap.Int("dimensions", b.dimensions),
	)
	return nil
}

// IsReady implements domain.Backend.
func (b *Backend) IsReady() bool { return b.ready.Load() }

// Embed implements domain.Backend.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(text)
	if vec, ok := b.cache.Get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues(BackendName, "hit").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues(BackendName, "miss").Inc()

	vecs, err := b.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	b.cache.Set(key, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks of at most maxBatchSize, pausing for the
// fixed batch delay between consecutive API calls. Responses are re-sorted by
// the returned index before being matched back to inputs.
func (b *Backend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	// Per-text cache pass first; only misses go to the API.
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := b.cache.Get(cache.Key(text)); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues(BackendName, "hit").Inc()
			vectors[i] = vec
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues(BackendName, "miss").Inc()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	for offset := 0; offset < len(missTexts); offset += b.maxBatchSize {
		if offset > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("batch delay: %w", ctx.Err())
			case <-time.After(b.batchDelay):
			}
		}

		end := offset + b.maxBatchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		chunk := missTexts[offset:end]

		vecs, err := b.request(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("batch chunk at %d: %w", offset, err)
		}

		for j, vec := range vecs {
			i := missIdx[offset+j]
			vectors[i] = vec
			b.cache.Set(cache.Key(texts[i]), vec)
		}
	}

	return vectors, nil
}

func (b *Backend) request(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          b.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := b.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(BackendName, string(b.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(BackendName, string(b.model), "api_error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(BackendName, string(b.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(BackendName, string(b.model), "malformed_response").Inc()
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(resp.Data), domain.ErrMalformedResponse)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(BackendName, string(b.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(BackendName, string(b.model)).Observe(duration.Seconds())

	// The API may return items out of order; the index field is authoritative.
	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(texts))
	for _, item := range data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range: %w",
				item.Index, domain.ErrMalformedResponse)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d: %w",
				item.Index, domain.ErrMalformedResponse)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// ModelInfo implements domain.Backend.
func (b *Backend) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{
		Name:       BackendName,
		Model:      string(b.model),
		Dimensions: b.dimensions,
		Local:      false,
	}
}

// CacheStats implements domain.Backend.
func (b *Backend) CacheStats() domain.CacheStats { return b.cache.Stats() }

// ClearCache implements domain.Backend.
func (b *Backend) ClearCache() { b.cache.Clear() }

// Cleanup implements domain.Backend.
func (b *Backend) Cleanup() error {
	b.cache.Clear()
	b.ready.Store(false)
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// Everything is wrapped with domain.ErrBackendUnavailable so the orchestrator
// can recover by demotion.
func parseAPIError(err error) error {
	wrap := domain.ErrBackendUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, wrap)
}

// extractDetail pulls the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
