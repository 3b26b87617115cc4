// Package vector provides the pure math shared by all embedding backends:
// cosine similarity, L2 normalization, and TF-IDF scoring. All functions are
// side-effect free and safe to share across backends without synchronization.
package vector

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/embedx/internal/domain"
)

// Zero returns an all-zero vector of the given length.
func Zero(dim int) []float32 {
	return make([]float32, dim)
}

// CosineSimilarity computes dot(a,b)/(|a||b|), range [-1, 1].
// Returns ErrLengthMismatch when lengths differ and 0 when either vector has
// zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrLengthMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Normalize returns an L2-normalized copy of v. A zero-magnitude vector is
// returned as an unchanged copy, never divided.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		copy(out, v)
		return out
	}

	mag := math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// TfIdf scores a term: tf * ln(N/df). Returns 0 when df or N is zero.
func TfIdf(tf float64, df, totalDocs int) float64 {
	if df == 0 || totalDocs == 0 {
		return 0
	}
	return tf * math.Log(float64(totalDocs)/float64(df))
}
