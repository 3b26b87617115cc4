package hybrid

import (
	"context"

	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/engine/statistical"
)

// FallbackEngine is the corpus-aware backend of last resort. It must always
// be able to initialize; its failures are fatal because nothing sits behind it.
type FallbackEngine interface {
	domain.Backend

	AddDocument(ctx context.Context, content, source string) (string, error)
	AddDocuments(ctx context.Context, batch []statistical.DocumentInput) ([]string, error)
	FindSimilar(ctx context.Context, query string, topK int, threshold float64) ([]domain.SimilarResult, error)
}
