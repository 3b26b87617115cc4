package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder vectorizes multiple texts in a single call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend is the full capability contract every embedding backend implements.
// Dimensions is fixed for the backend's lifetime unless the backend is rebuilt;
// the orchestrator relies on it to advertise a stable output dimensionality.
type Backend interface {
	Embedder
	BatchEmbedder

	Name() string
	Dimensions() int
	Initialize(ctx context.Context) error
	IsReady() bool
	ModelInfo() ModelInfo
	CacheStats() CacheStats
	ClearCache()
	Cleanup() error
}

// ModelInfo describes the model behind a backend.
type ModelInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Local      bool   `json:"local"`
}

// CacheStats reports the state of a backend's embedding cache.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

// Notifier delivers best-effort, fire-and-forget status messages on backend
// transitions. Implementations must never block or fail the caller's workflow.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
