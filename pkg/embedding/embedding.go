// Package embedding turns text into fixed-dimension vectors via a remote
// provider. Batch results are always restored to submission order, and
// provider failures propagate to the caller instead of degrading to zero
// vectors.
package embedding

import (
	"context"
	"errors"
	"math"
)

// InputType selects the provider-side embedding mode.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// ErrMissingAPIKey is returned at construction time, before any network call.
var ErrMissingAPIKey = errors.New("embedding: missing API key")

// Provider generates vector embeddings from text
type Provider interface {
	// EmbedDocument embeds texts in document mode. The returned slice is
	// positionally aligned with the input regardless of provider response
	// order.
	EmbedDocument(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single text in query mode.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	Dimension() int
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched or zero-norm vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
