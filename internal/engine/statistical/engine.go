// Package statistical implements the local TF-IDF embedding engine. It builds
// a term vocabulary and document-frequency table from an ingested corpus and
// turns arbitrary text into normalized fixed-length vectors without any
// external model, which makes it the system's backend of last resort: it is
// always available and its failures are nobody else's to catch.
package statistical

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/cache"
	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/domain/vector"
)

// BackendName identifies the engine in orchestrator state and metrics.
const BackendName = "statistical"

// docIDPrefixLen bounds how much of the content feeds the document id hash.
const docIDPrefixLen = 50

// Config holds the engine settings. Zero values fall back to defaults in New.
type Config struct {
	Dimensions        int
	MaxVocabularySize int
	// MinDocumentFrequency / MaxDocumentFrequency bound the df of terms that
	// contribute to vectors; zero disables the bound.
	MinDocumentFrequency int
	MaxDocumentFrequency int
	UseStopwords         bool
	UseStemming          bool
	MinWordLength        int
	CacheSize            int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Dimensions:        1000,
		MaxVocabularySize: 50000,
		UseStopwords:      true,
		UseStemming:       false,
		MinWordLength:     2,
		CacheSize:         cache.DefaultMaxSize,
	}
}

// DocumentInput is one corpus-ingestion entry.
type DocumentInput struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// Engine is the statistical embedding backend.
//
// Vocabulary and document frequency mutate only in AddDocument/AddDocuments;
// Embed takes the read lock, so reads never race corpus mutation. Once a
// batch ingestion completes the vocabulary locks permanently: later documents
// are still stored and counted toward totalDocuments, but neither the
// vocabulary nor the document-frequency table changes again.
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	tokenize Tokenizer
	now      func() time.Time

	ready        atomic.Bool
	initializing atomic.Bool

	mu          sync.RWMutex
	vocabulary  map[string]int
	docFreq     map[string]int
	documents   map[string]domain.Document
	docOrder    []string
	vocabLocked bool

	cache *cache.FIFO
}

// Compile-time check: Engine implements the backend contract.
var _ domain.Backend = (*Engine)(nil)

// New creates a statistical engine. Zero-valued config fields get defaults.
func New(cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.MaxVocabularySize <= 0 {
		cfg.MaxVocabularySize = def.MaxVocabularySize
	}
	if cfg.MinWordLength <= 0 {
		cfg.MinWordLength = def.MinWordLength
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
		tokenize: NewTokenizer(TokenizerOptions{
			UseStopwords:  cfg.UseStopwords,
			UseStemming:   cfg.UseStemming,
			MinWordLength: cfg.MinWordLength,
		}),
		now:        time.Now,
		vocabulary: make(map[string]int),
		docFreq:    make(map[string]int),
		documents:  make(map[string]domain.Document),
		cache:      cache.NewFIFO(cfg.CacheSize),
	}
}

// WithTokenizer replaces the preprocessing pipeline.
func (e *Engine) WithTokenizer(t Tokenizer) *Engine {
	e.tokenize = t
	return e
}

// WithClock injects a time source for deterministic document ids in tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Name implements domain.Backend.
func (e *Engine) Name() string { return BackendName }

// Dimensions implements domain.Backend.
func (e *Engine) Dimensions() int { return e.cfg.Dimensions }

// Initialize is idempotent and always succeeds: the engine has no external
// dependency. Concurrent calls race on a CAS; all but the winner return
// immediately without re-entering the initialization body.
func (e *Engine) Initialize(_ context.Context) error {
	if e.ready.Load() {
		return nil
	}
	if !e.initializing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.initializing.Store(false)

	e.ready.Store(true)
	e.logger.Info("Statistical engine initialized",
		zap.Int("dimensions", e.cfg.Dimensions),
		zap.Int("max_vocabulary_size", e.cfg.MaxVocabularySize),
	)
	return nil
}

// IsReady implements domain.Backend.
func (e *Engine) IsReady() bool { return e.ready.Load() }

// Embed converts text into a normalized TF-IDF vector of configured length.
// An empty token list yields the zero vector; the result is cached either way.
func (e *Engine) Embed(_ context.Context, text string) ([]float32, error) {
	key := cache.Key(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vec := e.compute(text)
	e.cache.Set(key, vec)
	return vec, nil
}

// EmbedBatch embeds each text, reusing cached entries. There is no batched
// speed-up beyond the cache: uncached texts are computed one at a time.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed [%d]: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *Engine) compute(text string) []float32 {
	tokens := e.tokenize(text)
	freqs := termFrequencies(tokens)
	vec := vector.Zero(e.cfg.Dimensions)

	e.mu.RLock()
	defer e.mu.RUnlock()

	totalDocs := len(e.documents)
	if totalDocs < 1 {
		totalDocs = 1
	}

	for term, tf := range freqs {
		idx, ok := e.vocabulary[term]
		if !ok || idx >= e.cfg.Dimensions {
			// Vocabulary indices at or beyond the dimensionality exist but are
			// never written: vectors only ever use the first Dimensions terms.
			continue
		}

		df := e.docFreq[term]
		if df == 0 {
			df = 1
		}
		if e.cfg.MinDocumentFrequency > 0 && df < e.cfg.MinDocumentFrequency {
			continue
		}
		if e.cfg.MaxDocumentFrequency > 0 && df > e.cfg.MaxDocumentFrequency {
			continue
		}

		vec[idx] = float32(vector.TfIdf(tf, df, totalDocs))
	}

	return vector.Normalize(vec)
}

// AddDocument ingests one document and returns its id, or an empty id when
// preprocessing leaves no tokens. Re-adding identical content produces a new
// document and a second document-frequency increment for its terms: document
// identity mixes a content-prefix hash with the clock, so ingestion is
// deliberately not idempotent (re-indexing edited content as a new version).
// The embedding cache is cleared unconditionally because any df change
// invalidates every previously cached vector.
func (e *Engine) AddDocument(_ context.Context, content, source string) (string, error) {
	tokens := e.tokenize(content)
	if len(tokens) == 0 {
		return "", nil
	}

	doc := domain.Document{
		ID:       e.documentID(content, source),
		Content:  content,
		Source:   source,
		Tokens:   tokens,
		TermFreq: termFrequencies(tokens),
	}

	e.mu.Lock()
	if !e.vocabLocked {
		for term := range doc.TermFreq {
			if _, known := e.vocabulary[term]; !known && len(e.vocabulary) < e.cfg.MaxVocabularySize {
				e.vocabulary[term] = len(e.vocabulary)
			}
			e.docFreq[term]++
		}
	}
	e.documents[doc.ID] = doc
	e.docOrder = append(e.docOrder, doc.ID)
	e.mu.Unlock()

	e.cache.Clear()
	return doc.ID, nil
}

// AddDocuments ingests a batch in order, then locks the vocabulary: after
// this call vocabulary and document frequency are frozen permanently, even
// though later AddDocument calls still store content.
func (e *Engine) AddDocuments(ctx context.Context, batch []DocumentInput) ([]string, error) {
	ids := make([]string, len(batch))
	for i, in := range batch {
		id, err := e.AddDocument(ctx, in.Content, in.Source)
		if err != nil {
			return nil, fmt.Errorf("add document [%d]: %w", i, err)
		}
		ids[i] = id
	}

	e.mu.Lock()
	e.vocabLocked = true
	vocabSize, docCount := len(e.vocabulary), len(e.documents)
	e.mu.Unlock()

	e.logger.Info("Corpus batch ingested, vocabulary locked",
		zap.Int("batch_size", len(batch)),
		zap.Int("vocabulary_size", vocabSize),
		zap.Int("documents", docCount),
	)
	return ids, nil
}

// FindSimilar embeds the query and every stored document, keeps scores at or
// above threshold, and returns the topK best. Ties keep ingestion order.
func (e *Engine) FindSimilar(
	ctx context.Context, query string, topK int, threshold float64,
) ([]domain.SimilarResult, error) {
	queryVec, err := e.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	e.mu.RLock()
	order := make([]string, len(e.docOrder))
	copy(order, e.docOrder)
	e.mu.RUnlock()

	results := make([]domain.SimilarResult, 0, len(order))
	for _, id := range order {
		e.mu.RLock()
		doc := e.documents[id]
		e.mu.RUnlock()

		docVec, err := e.Embed(ctx, doc.Content)
		if err != nil {
			return nil, fmt.Errorf("embed document %s: %w", id, err)
		}

		score, err := vector.CosineSimilarity(queryVec, docVec)
		if err != nil {
			return nil, fmt.Errorf("score document %s: %w", id, err)
		}
		if score >= threshold {
			results = append(results, domain.SimilarResult{
				ID:      doc.ID,
				Score:   score,
				Content: doc.Content,
				Source:  doc.Source,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ModelInfo implements domain.Backend.
func (e *Engine) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{
		Name:       BackendName,
		Model:      "tfidf",
		Dimensions: e.cfg.Dimensions,
		Local:      true,
	}
}

// CacheStats implements domain.Backend.
func (e *Engine) CacheStats() domain.CacheStats { return e.cache.Stats() }

// ClearCache implements domain.Backend.
func (e *Engine) ClearCache() { e.cache.Clear() }

// Cleanup resets all engine state: vocabulary, document frequency, documents,
// lock flag, and cache. The engine must be re-initialized afterwards.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	e.vocabulary = make(map[string]int)
	e.docFreq = make(map[string]int)
	e.documents = make(map[string]domain.Document)
	e.docOrder = nil
	e.vocabLocked = false
	e.mu.Unlock()

	e.cache.Clear()
	e.ready.Store(false)
	return nil
}

// VocabularySize returns the number of terms with assigned indices.
func (e *Engine) VocabularySize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.vocabulary)
}

// VocabularyLocked reports whether batch ingestion has frozen the vocabulary.
func (e *Engine) VocabularyLocked() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vocabLocked
}

// VocabularyIndex returns the vector coordinate assigned to term.
func (e *Engine) VocabularyIndex(term string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.vocabulary[term]
	return idx, ok
}

// DocumentFrequency returns how many distinct documents contain term.
func (e *Engine) DocumentFrequency(term string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docFreq[term]
}

// DocumentCount returns the number of stored documents.
func (e *Engine) DocumentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.documents)
}

func (e *Engine) documentID(content, source string) string {
	prefix := content
	if len(prefix) > docIDPrefixLen {
		prefix = prefix[:docIDPrefixLen]
	}
	return fmt.Sprintf("doc_%s_%s_%d",
		shortHash(prefix), shortHash(source), e.now().UnixNano())
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:4])
}
