// Package huggingface implements the neural embedding backend on top of the
// HuggingFace Inference API. Model loading happens on the HuggingFace side,
// so initialization can hang or fail; the orchestrator bounds it with a
// timeout and treats this backend as optional.
package huggingface

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/go-huggingface"
	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/cache"
	"github.com/kailas-cloud/embedx/internal/domain"
)

// BackendName identifies the backend in orchestrator state and metrics.
const BackendName = "neural"

// DefaultDimensions matches sentence-transformer feature-extraction models.
const DefaultDimensions = 512

// Config holds the neural backend settings.
type Config struct {
	ModelID    string
	Token      string
	Dimensions int
	CacheSize  int
	Logger     *zap.Logger
}

// Backend embeds text via HuggingFace feature extraction.
type Backend struct {
	client     *huggingface.InferenceClient
	modelID    string
	dimensions int
	logger     *zap.Logger
	cache      *cache.FIFO

	ready        atomic.Bool
	initializing atomic.Bool
}

var _ domain.Backend = (*Backend)(nil)

// New creates a neural backend. The model is not contacted until Initialize.
func New(cfg Config) *Backend {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	client := huggingface.NewInferenceClient(cfg.Token)
	client.SetModel(cfg.ModelID)

	return &Backend{
		client:     client,
		modelID:    cfg.ModelID,
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
		cache:      cache.NewFIFO(cfg.CacheSize),
	}
}

// Name implements domain.Backend.
func (b *Backend) Name() string { return BackendName }

// Dimensions implements domain.Backend.
func (b *Backend) Dimensions() int { return b.dimensions }

// Initialize performs a probe extraction to force model loading and verify
// the declared dimensionality. WaitForModel makes the API block while the
// model spins up, which is exactly the hang the orchestrator's timeout race
// is designed to bound.
func (b *Backend) Initialize(ctx context.Context) error {
	if b.ready.Load() {
		return nil
	}
	if !b.initializing.CompareAndSwap(false, true) {
		return nil
	}
	defer b.initializing.Store(false)

	vec, err := b.extract(ctx, "backend warmup probe")
	if err != nil {
		return fmt.Errorf("probe model %s: %w", b.modelID, err)
	}
	if len(vec) != b.dimensions {
		return fmt.Errorf("model %s produced %d dimensions, declared %d: %w",
			b.modelID, len(vec), b.dimensions, domain.ErrDimensionMismatch)
	}

	b.ready.Store(true)
	b.logger.Info("Neural backend initialized",
		zap.String("model", b.modelID),
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
		return vec, nil
	}

	vec, err := b.extract(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != b.dimensions {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d: %w",
			b.modelID, len(vec), b.dimensions, domain.ErrDimensionMismatch)
	}

	b.cache.Set(key, vec)
	return vec, nil
}

// EmbedBatch embeds each text individually; the inference API has no batch
// endpoint worth the trouble for feature extraction.
func (b *Backend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := b.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed [%d]: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (b *Backend) extract(ctx context.Context, text string) ([]float32, error) {
	req := &huggingface.FeatureExtractionRequest{
		Inputs: []string{text},
		Options: huggingface.Options{
			WaitForModel: huggingface.PTR(true),
			UseCache:     huggingface.PTR(true),
		},
	}

	resp, err := b.client.FeatureExtractionWithAutomaticReduction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feature extraction (%s): %v: %w",
			b.modelID, err, domain.ErrBackendUnavailable)
	}
	if len(resp) == 0 || len(resp[0]) == 0 {
		return nil, fmt.Errorf("empty feature extraction response: %w",
			domain.ErrMalformedResponse)
	}
	return resp[0], nil
}

// ModelInfo implements domain.Backend.
func (b *Backend) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{
		Name:       BackendName,
		Model:      b.modelID,
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
