// Package hybrid orchestrates embedding backends. It always brings up the
// statistical engine first as a safety net, races preferred backends against
// a timeout, and demotes to the engine on initialization failure, runtime
// error, or dimension mismatch — guaranteeing callers a stable advertised
// dimensionality at all times.
package hybrid

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/engine/statistical"
	"github.com/kailas-cloud/embedx/internal/metrics"
)

// probeText is the fixed self-test input embedded after a preferred backend
// initializes; the round trip must return the backend's declared length.
const probeText = "embedding backend self-test probe"

// DefaultFallbackTimeout bounds preferred-backend initialization.
const DefaultFallbackTimeout = 30 * time.Second

// Config holds orchestrator settings.
type Config struct {
	Method          domain.Method
	FallbackTimeout time.Duration
}

// Status is a point-in-time snapshot of orchestrator state for introspection.
type Status struct {
	Method         domain.Method                `json:"method"`
	ActiveBackend  string                       `json:"active_backend"`
	Dimensions     int                          `json:"dimensions"`
	UsingFallback  bool                         `json:"using_fallback"`
	FallbackReason string                       `json:"fallback_reason,omitempty"`
	Model          domain.ModelInfo             `json:"model"`
	Caches         map[string]domain.CacheStats `json:"caches"`
}

// Orchestrator routes embedding requests to the active backend and owns the
// failure-driven transition state machine.
type Orchestrator struct {
	fallback        FallbackEngine
	backends        map[domain.Method]domain.Backend
	order           []domain.Method
	notifier        domain.Notifier
	logger          *zap.Logger
	fallbackTimeout time.Duration

	initialized  atomic.Bool
	initializing atomic.Bool

	mu             sync.RWMutex
	method         domain.Method
	active         domain.Backend
	dimensions     int
	usingFallback  bool
	fallbackReason string
}

// New creates an orchestrator over the given fallback engine.
func New(fallback FallbackEngine, cfg Config, logger *zap.Logger) *Orchestrator {
	method := cfg.Method
	if method == "" {
		method = domain.MethodAuto
	}
	timeout := cfg.FallbackTimeout
	if timeout <= 0 {
		timeout = DefaultFallbackTimeout
	}

	return &Orchestrator{
		fallback:        fallback,
		backends:        make(map[domain.Method]domain.Backend),
		logger:          logger,
		fallbackTimeout: timeout,
		method:          method,
	}
}

// RegisterBackend adds a preferred backend candidate. Registration order is
// the auto-method preference order.
func (o *Orchestrator) RegisterBackend(m domain.Method, b domain.Backend) *Orchestrator {
	o.backends[m] = b
	o.order = append(o.order, m)
	return o
}

// WithNotifier attaches a best-effort transition notifier.
func (o *Orchestrator) WithNotifier(n domain.Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// Initialize is idempotent; concurrent calls race on a CAS and all but the
// winner return immediately. The statistical engine always comes up first;
// preferred backends are then raced against the fallback timeout, with a
// timeout treated identically to an explicit initialization failure.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.initialized.Load() {
		return nil
	}
	if !o.initializing.CompareAndSwap(false, true) {
		return nil
	}
	defer o.initializing.Store(false)

	if err := o.fallback.Initialize(ctx); err != nil {
		// Backend of last resort: nothing to demote to.
		return fmt.Errorf("initialize fallback engine: %w", err)
	}

	method := o.Method()
	var lastErr error
	for _, m := range o.candidates(method) {
		b, ok := o.backends[m]
		if !ok {
			continue
		}

		if err := o.bringUp(ctx, b); err != nil {
			lastErr = err
			o.logger.Warn("Preferred backend failed to initialize",
				zap.String("backend", b.Name()),
				zap.Error(err),
			)
			continue
		}

		o.setActive(ctx, b, false, "", "")
		o.initialized.Store(true)
		return nil
	}

	if method.RequiresBackend() && lastErr != nil && !o.fallback.IsReady() {
		return fmt.Errorf("%s backend failed and fallback is not ready: %v: %w",
			method, lastErr, domain.ErrNoUsableBackend)
	}

	reason := ""
	usingFallback := false
	trigger := ""
	if lastErr != nil {
		reason = fmt.Sprintf("%s unavailable: %v", method, lastErr)
		usingFallback = true
		trigger = "init_failure"
	}
	o.setActive(ctx, o.fallback, usingFallback, reason, trigger)
	o.initialized.Store(true)
	return nil
}

// candidates returns the preferred backends to try for a method. The
// statistical method never attempts a preferred backend.
func (o *Orchestrator) candidates(m domain.Method) []domain.Method {
	switch m {
	case domain.MethodAuto:
		return o.order
	case domain.MethodStatistical:
		return nil
	default:
		return []domain.Method{m}
	}
}

// bringUp races the backend's initialization against the fallback timeout,
// then runs the functional self-test.
func (o *Orchestrator) bringUp(ctx context.Context, b domain.Backend) error {
	initCtx, cancel := context.WithTimeout(ctx, o.fallbackTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.Initialize(initCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	case <-time.After(o.fallbackTimeout):
		return fmt.Errorf("initialization timed out after %s: %w",
			o.fallbackTimeout, domain.ErrBackendUnavailable)
	}

	vec, err := b.Embed(ctx, probeText)
	if err != nil {
		return fmt.Errorf("self-test embed: %w", err)
	}
	if len(vec) != b.Dimensions() {
		return fmt.Errorf("self-test returned %d dimensions, declared %d: %w",
			len(vec), b.Dimensions(), domain.ErrDimensionMismatch)
	}
	return nil
}

// setActive installs a backend and updates the advertised dimensionality in
// the same critical section, so no embed call can observe a half-applied
// transition.
func (o *Orchestrator) setActive(
	ctx context.Context, b domain.Backend, usingFallback bool, reason, trigger string,
) {
	o.mu.Lock()
	from := ""
	if o.active != nil {
		from = o.active.Name()
	}
	o.active = b
	o.dimensions = b.Dimensions()
	o.usingFallback = usingFallback
	o.fallbackReason = reason
	o.mu.Unlock()

	for _, m := range o.order {
		if cand, ok := o.backends[m]; ok {
			metrics.ActiveBackend.WithLabelValues(cand.Name()).Set(0)
		}
	}
	metrics.ActiveBackend.WithLabelValues(o.fallback.Name()).Set(0)
	metrics.ActiveBackend.WithLabelValues(b.Name()).Set(1)
	if trigger != "" {
		metrics.FallbackTransitionsTotal.WithLabelValues(from, b.Name(), trigger).Inc()
	}

	o.logger.Info("Active embedding backend set",
		zap.String("backend", b.Name()),
		zap.Int("dimensions", b.Dimensions()),
		zap.Bool("using_fallback", usingFallback),
		zap.String("reason", reason),
	)
	o.notify(ctx, fmt.Sprintf("embedding backend: %s (%d dimensions)", b.Name(), b.Dimensions()))
}

// Embed delegates to the active backend. On a runtime error or a vector not
// matching the advertised dimensionality, it demotes to the fallback exactly
// once and retries the same request; it never recurses further, and errors on
// the fallback itself propagate.
func (o *Orchestrator) Embed(ctx context.Context, text string) ([]float32, error) {
	active, dims, onFallback, err := o.activeState()
	if err != nil {
		return nil, err
	}

	vec, err := active.Embed(ctx, text)
	if err == nil && len(vec) == dims {
		return vec, nil
	}

	if onFallback {
		if err != nil {
			return nil, fmt.Errorf("fallback embed: %w", err)
		}
		return nil, fmt.Errorf("fallback returned %d dimensions, advertised %d: %w",
			len(vec), dims, domain.ErrDimensionMismatch)
	}

	o.demote(ctx, active, demoteReason(active.Name(), len(vec), dims, err))

	retried, retryErr := o.fallback.Embed(ctx, text)
	if retryErr != nil {
		return nil, fmt.Errorf("fallback embed after demotion: %w", retryErr)
	}
	return retried, nil
}

// EmbedBatch applies the same single-demotion-and-retry policy to the whole
// batch call, not per item.
func (o *Orchestrator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	active, dims, onFallback, err := o.activeState()
	if err != nil {
		return nil, err
	}

	vecs, err := active.EmbedBatch(ctx, texts)
	if err == nil {
		if bad := firstLengthMismatch(vecs, dims); bad < 0 {
			return vecs, nil
		}
	}

	if onFallback {
		if err != nil {
			return nil, fmt.Errorf("fallback batch embed: %w", err)
		}
		return nil, fmt.Errorf("fallback batch dimensions mismatch: %w", domain.ErrDimensionMismatch)
	}

	badLen := -1
	if err == nil {
		if i := firstLengthMismatch(vecs, dims); i >= 0 {
			badLen = len(vecs[i])
		}
	}
	o.demote(ctx, active, demoteReason(active.Name(), badLen, dims, err))

	retried, retryErr := o.fallback.EmbedBatch(ctx, texts)
	if retryErr != nil {
		return nil, fmt.Errorf("fallback batch embed after demotion: %w", retryErr)
	}
	return retried, nil
}

// AddDocuments always feeds the statistical engine, even when it is not the
// active backend: only it benefits from corpus statistics.
func (o *Orchestrator) AddDocuments(
	ctx context.Context, batch []statistical.DocumentInput,
) ([]string, error) {
	ids, err := o.fallback.AddDocuments(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return ids, nil
}

// FindSimilar runs a corpus similarity search via the statistical engine.
func (o *Orchestrator) FindSimilar(
	ctx context.Context, query string, topK int, threshold float64,
) ([]domain.SimilarResult, error) {
	results, err := o.fallback.FindSimilar(ctx, query, topK, threshold)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	return results, nil
}

// SwitchMethod re-evaluates the active backend on explicit request,
// independent of any prior failure history. If the requested backend is not
// ready the orchestrator stays where it is and reports the refusal.
func (o *Orchestrator) SwitchMethod(ctx context.Context, m domain.Method) error {
	target, usingFallback, reason := o.resolveSwitch(m)
	if target == nil {
		return fmt.Errorf("switch to %s: %w", m, domain.ErrBackendNotReady)
	}

	o.mu.Lock()
	o.method = m
	o.mu.Unlock()

	o.setActive(ctx, target, usingFallback, reason, "switch")
	return nil
}

func (o *Orchestrator) resolveSwitch(m domain.Method) (domain.Backend, bool, string) {
	switch m {
	case domain.MethodStatistical:
		if !o.fallback.IsReady() {
			return nil, false, ""
		}
		return o.fallback, false, ""
	case domain.MethodAuto:
		for _, cand := range o.order {
			if b, ok := o.backends[cand]; ok && b.IsReady() {
				return b, false, ""
			}
		}
		if o.fallback.IsReady() {
			return o.fallback, true, "no preferred backend ready"
		}
		return nil, false, ""
	default:
		b, ok := o.backends[m]
		if !ok || !b.IsReady() {
			return nil, false, ""
		}
		return b, false, ""
	}
}

// Cleanup releases every owned backend and resets to uninitialized.
func (o *Orchestrator) Cleanup() error {
	var firstErr error
	for _, m := range o.order {
		if b, ok := o.backends[m]; ok {
			if err := b.Cleanup(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("cleanup %s: %w", b.Name(), err)
			}
		}
	}
	if err := o.fallback.Cleanup(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("cleanup %s: %w", o.fallback.Name(), err)
	}

	o.mu.Lock()
	o.active = nil
	o.dimensions = 0
	o.usingFallback = false
	o.fallbackReason = ""
	o.mu.Unlock()
	o.initialized.Store(false)

	return firstErr
}

// IsReady reports whether Initialize has completed.
func (o *Orchestrator) IsReady() bool { return o.initialized.Load() }

// Dimensions returns the advertised output dimensionality, always equal to
// the active backend's.
func (o *Orchestrator) Dimensions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dimensions
}

// Method returns the configured method preference.
func (o *Orchestrator) Method() domain.Method {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.method
}

// UsingFallback reports whether the orchestrator has demoted to the engine.
func (o *Orchestrator) UsingFallback() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.usingFallback
}

// ActiveBackendName returns the active backend's name, or empty when
// uninitialized.
func (o *Orchestrator) ActiveBackendName() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.active == nil {
		return ""
	}
	return o.active.Name()
}

// GetStatus snapshots the orchestrator and per-backend cache state.
func (o *Orchestrator) GetStatus() Status {
	o.mu.RLock()
	active := o.active
	st := Status{
		Method:         o.method,
		Dimensions:     o.dimensions,
		UsingFallback:  o.usingFallback,
		FallbackReason: o.fallbackReason,
	}
	o.mu.RUnlock()

	if active != nil {
		st.ActiveBackend = active.Name()
		st.Model = active.ModelInfo()
	}

	st.Caches = map[string]domain.CacheStats{
		o.fallback.Name(): o.fallback.CacheStats(),
	}
	for _, m := range o.order {
		if b, ok := o.backends[m]; ok {
			st.Caches[b.Name()] = b.CacheStats()
		}
	}
	return st
}

// ClearCaches clears every backend's embedding cache.
func (o *Orchestrator) ClearCaches() {
	o.fallback.ClearCache()
	for _, m := range o.order {
		if b, ok := o.backends[m]; ok {
			b.ClearCache()
		}
	}
}

func (o *Orchestrator) activeState() (domain.Backend, int, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.active == nil {
		return nil, 0, false, domain.ErrNoUsableBackend
	}
	return o.active, o.dimensions, o.active == domain.Backend(o.fallback), nil
}

func (o *Orchestrator) demote(ctx context.Context, from domain.Backend, reason string) {
	o.mu.Lock()
	if o.active != domain.Backend(from) {
		// Another request demoted first; keep its recorded reason.
		o.mu.Unlock()
		return
	}
	o.active = o.fallback
	o.dimensions = o.fallback.Dimensions()
	o.usingFallback = true
	o.fallbackReason = reason
	o.mu.Unlock()

	o.logger.Warn("Demoting to fallback backend",
		zap.String("from", from.Name()),
		zap.String("reason", reason),
	)
	metrics.EmbeddingErrorsTotal.WithLabelValues(from.Name(), from.ModelInfo().Model, "demotion").Inc()
	metrics.ActiveBackend.WithLabelValues(from.Name()).Set(0)
	metrics.ActiveBackend.WithLabelValues(o.fallback.Name()).Set(1)
	metrics.FallbackTransitionsTotal.WithLabelValues(from.Name(), o.fallback.Name(), "runtime_error").Inc()

	o.notify(ctx, fmt.Sprintf("embedding backend degraded to %s: %s", o.fallback.Name(), reason))
}

func (o *Orchestrator) notify(ctx context.Context, message string) {
	if o.notifier == nil {
		return
	}
	// Fire and forget: a notifier must never block or fail the caller.
	o.notifier.Notify(ctx, message)
}

func demoteReason(backend string, got, want int, err error) string {
	if err != nil {
		return fmt.Sprintf("%s embed failed: %v", backend, err)
	}
	return fmt.Sprintf("%s returned %d dimensions, advertised %d", backend, got, want)
}

func firstLengthMismatch(vecs [][]float32, dims int) int {
	for i, v := range vecs {
		if len(v) != dims {
			return i
		}
	}
	return -1
}
