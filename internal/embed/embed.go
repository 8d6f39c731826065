// Package embed generates vector embeddings for documents and queries.
// The Ollama embedder is the default; a deterministic hash-based embedder
// serves as an offline fallback so the pipeline degrades instead of dying
// when no model server is reachable.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch size to prevent memory exhaustion.
	MaxBatchSize = 256

	// WarmTimeout is the per-request timeout when the model is loaded.
	WarmTimeout = 60 * time.Second

	// ColdTimeout is the per-request timeout when the model may need
	// loading first. Ollama unloads idle models after ~5 minutes.
	ColdTimeout = 120 * time.Second

	// ModelUnloadThreshold is how long without calls before the model is
	// assumed cold again.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the default number of attempts per request.
	DefaultMaxRetries = 3

	// StaticDimensions is the dimension of the hash-based fallback.
	StaticDimensions = 384
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// CosineSimilarity returns the cosine similarity of two vectors. Unit-length
// inputs reduce this to a dot product. Mismatched lengths score zero.
func CosineSimilarity(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
