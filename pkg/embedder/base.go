// Package embedder provides the base model backend contract.
//
// It defines the Provider interface that every backend variant (hosted API,
// sentence embedding, raw transformer, static word vectors, flag embedding)
// must satisfy, so the evaluation harness can turn text into vectors without
// knowing which model family it is talking to.
package embedder

import (
	"context"
	"math"
)

// Provider defines the interface for model backends.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	//
	// The returned slice has the same length and order as texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of embedding vectors produced by this
	// provider, or 0 when it is only known after the first request.
	Dimensions() int

	// Close releases the resources held by the backend.
	Close() error
}

// Loader is implemented by backends whose weights can be loaded ahead of the
// first request.
type Loader interface {
	Load(ctx context.Context) error
}

// MeanPool averages equally sized vectors. It returns nil for no input.
func MeanPool(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

// Normalize scales v to unit L2 norm in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// ToFloat64 widens a float32 vector.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
