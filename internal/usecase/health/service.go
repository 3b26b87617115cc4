package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status  Status                 `json:"status"`
	Backend string                 `json:"backend,omitempty"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	embedding EmbeddingChecker
	store     StorePinger
}

// New creates a Service. store can be nil when no cache store is configured.
func New(embedding EmbeddingChecker, store StorePinger) *Service {
	return &Service{embedding: embedding, store: store}
}

// Check runs health checks against all components. An unavailable embedding
// layer is Unhealthy (nothing can serve); a dead cache store only degrades.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	status := Healthy
	if s.embedding.IsReady() {
		checks["embedding"] = CheckOK
	} else {
		checks["embedding"] = CheckError
		status = Unhealthy
	}

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			checks["cache_store"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["cache_store"] = CheckOK
		}
	}

	return Report{
		Status:  status,
		Backend: s.embedding.ActiveBackendName(),
		Checks:  checks,
	}
}
