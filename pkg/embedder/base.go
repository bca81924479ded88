// Package embedder defines the embedding collaborator interface used to
// derive semantic similarity for memory scoring.
package embedder

import (
	"context"
	"math"
)

// Provider converts text into vector embeddings.
//
// The memory core never computes embeddings itself; a Provider is the
// external collaborator that does. All implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed converts a single text into an embedding vector.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts in one request, returning vectors
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the width of vectors this provider produces.
	Dimensions() int

	// Close releases any resources held by the provider.
	Close() error
}

// CosineSimilarity computes the cosine similarity of two vectors, mapped
// into [0,1] so it can be used directly as a semantic similarity score.
// Mismatched lengths or zero-norm vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	// Raw cosine is in [-1,1]; shift into [0,1].
	return (dot/(math.Sqrt(normA)*math.Sqrt(normB)) + 1) / 2
}
