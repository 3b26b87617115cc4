package domain

import "errors"

var (
	// ErrNoUsableBackend signals that no embedding backend is available at all.
	// Unrecoverable: there is no further fallback behind the statistical engine.
	ErrNoUsableBackend = errors.New("no usable embedding backend")
	// ErrBackendUnavailable signals an embedding backend failure.
	// Recoverable at the orchestrator while the fallback is ready.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")
	// ErrDimensionMismatch signals a vector of unexpected length from a backend.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrMalformedResponse signals an unusable response from a remote backend.
	ErrMalformedResponse = errors.New("malformed embedding response")
	// ErrLengthMismatch signals a vector math precondition violation.
	ErrLengthMismatch = errors.New("vector length mismatch")
	// ErrBackendNotReady signals a switch to a backend that is not ready.
	ErrBackendNotReady = errors.New("embedding backend not ready")
	// ErrEmptyBatch signals a batch call without any texts.
	ErrEmptyBatch = errors.New("empty batch")
)
