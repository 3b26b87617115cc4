package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/engine/statistical"
	"github.com/kailas-cloud/embedx/internal/usecase/hybrid"
	healthuc "github.com/kailas-cloud/embedx/internal/usecase/health"
)

type mockEmbedService struct {
	vector []float32
	err    error
}

func (m *mockEmbedService) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbedService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = m.vector
	}
	return vecs, nil
}

type mockOrchestration struct {
	ids       []string
	addErr    error
	results   []domain.SimilarResult
	searchErr error
	switchErr error
	status    hybrid.Status

	addedBatch    []statistical.DocumentInput
	switchedTo    domain.Method
	cachesCleared bool
}

func (m *mockOrchestration) AddDocuments(
	_ context.Context, batch []statistical.DocumentInput,
) ([]string, error) {
	m.addedBatch = batch
	if m.addErr != nil {
		return nil, m.addErr
	}
	return m.ids, nil
}

func (m *mockOrchestration) FindSimilar(
	_ context.Context, _ string, _ int, _ float64,
) ([]domain.SimilarResult, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockOrchestration) SwitchMethod(_ context.Context, method domain.Method) error {
	if m.switchErr != nil {
		return m.switchErr
	}
	m.switchedTo = method
	return nil
}

func (m *mockOrchestration) GetStatus() hybrid.Status { return m.status }

func (m *mockOrchestration) ClearCaches() { m.cachesCleared = true }

type mockHealthChecker struct {
	ready   bool
	backend string
}

func (m *mockHealthChecker) IsReady() bool             { return m.ready }
func (m *mockHealthChecker) ActiveBackendName() string { return m.backend }

func newTestServer(t *testing.T, embedder *mockEmbedService, orch *mockOrchestration) http.Handler {
	t.Helper()
	health := healthuc.New(&mockHealthChecker{ready: true, backend: "statistical"}, nil)
	srv := NewServer(embedder, orch, health, zap.NewNop())
	r := chirouter.NewRouter()
	srv.Routes(r)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
