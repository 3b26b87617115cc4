package statistical

import "strings"

// Tokenizer turns raw text into the token stream the engine scores.
// The engine treats it as an opaque preprocessing step, so callers can swap
// in their own pipeline via WithTokenizer.
type Tokenizer func(text string) []string

// stopwords is a small English list; enough for corpus statistics, not meant
// to be linguistically complete.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "no": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "she": {}, "so": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "which": {}, "who": {},
	"will": {}, "with": {}, "you": {}, "your": {},
}

// TokenizerOptions configures the default preprocessing pipeline.
type TokenizerOptions struct {
	UseStopwords  bool
	UseStemming   bool
	MinWordLength int
}

// NewTokenizer builds the default pipeline: lowercase, split on
// non-alphanumeric runs, optional stopword removal, optional stemming,
// minimum-length filter.
func NewTokenizer(opts TokenizerOptions) Tokenizer {
	return func(text string) []string {
		fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})

		tokens := make([]string, 0, len(fields))
		for _, tok := range fields {
			if opts.UseStopwords {
				if _, skip := stopwords[tok]; skip {
					continue
				}
			}
			if opts.UseStemming {
				tok = stem(tok)
			}
			if len(tok) < opts.MinWordLength {
				continue
			}
			tokens = append(tokens, tok)
		}
		return tokens
	}
}

// stem strips common English suffixes. Deliberately crude: the engine needs
// stable term identity, not linguistic accuracy.
func stem(word string) string {
	for _, suffix := range []string{"ingly", "edly", "ing", "ed", "ly", "es", "s"} {
		if strings.HasSuffix(word, suffix) && len(word)-len(suffix) >= 3 {
			return word[:len(word)-len(suffix)]
		}
	}
	return word
}

// termFrequencies maps each term to count(term)/len(tokens).
func termFrequencies(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	freqs := make(map[string]float64, len(counts))
	total := float64(len(tokens))
	for term, n := range counts {
		freqs[term] = float64(n) / total
	}
	return freqs
}
