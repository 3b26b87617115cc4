package domain

import "fmt"

// Method selects which embedding backend the orchestrator should prefer.
type Method string

const (
	// MethodAuto tries the richer backends in preference order and falls back
	// to the statistical engine when none of them come up.
	MethodAuto Method = "auto"
	// MethodNeural requires the neural (feature-extraction model) backend.
	MethodNeural Method = "neural"
	// MethodRemote requires the remote embeddings API backend.
	MethodRemote Method = "remote"
	// MethodStatistical uses the local statistical engine only.
	MethodStatistical Method = "statistical"
)

// ParseMethod validates a method string. An empty string resolves to auto.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "":
		return MethodAuto, nil
	case MethodAuto, MethodNeural, MethodRemote, MethodStatistical:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown embedding method %q", s)
	}
}

// RequiresBackend reports whether the method demands one specific
// non-fallback backend rather than a preference order.
func (m Method) RequiresBackend() bool {
	return m == MethodNeural || m == MethodRemote
}
