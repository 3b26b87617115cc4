package domain

// Document is an ingested corpus entry. Immutable once stored; documents are
// never deleted individually, only bulk-cleared by an engine reset.
type Document struct {
	ID      string
	Content string
	Source  string
	Tokens  []string
	// TermFreq maps term -> count(term)/len(tokens), a relative frequency.
	TermFreq map[string]float64
}

// SimilarResult is a single hit from a corpus similarity search.
type SimilarResult struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
}
