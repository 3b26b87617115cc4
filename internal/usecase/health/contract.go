package health

import "context"

// EmbeddingChecker reports whether the embedding orchestrator can serve.
type EmbeddingChecker interface {
	IsReady() bool
	ActiveBackendName() string
}

// StorePinger checks the optional cache store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}
