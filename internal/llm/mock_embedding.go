package llm

import (
	"context"
	"math"
)

const mockEmbeddingDimension = 1536

// MockEmbeddingGenerator produces deterministic pseudo-embeddings seeded from
// a hash of the input text. Identical texts always map to identical vectors,
// so exact-duplicate lookups work, but the vectors carry no semantic meaning:
// similar texts do not land near each other. It exists so the assistant can
// run without any embedding provider configured.
type MockEmbeddingGenerator struct{}

// NewMockEmbeddingGenerator creates a mock embedding generator.
func NewMockEmbeddingGenerator() *MockEmbeddingGenerator {
	return &MockEmbeddingGenerator{}
}

// Embed generates a deterministic unit vector for the given text.
func (g *MockEmbeddingGenerator) Embed(_ context.Context, text string) ([]float32, error) {
	return mockEmbedding(text), nil
}

// EmbedBatch generates deterministic unit vectors for multiple texts.
func (g *MockEmbeddingGenerator) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = mockEmbedding(t)
	}
	return vecs, nil
}

// GetModel returns the mock model identifier.
func (g *MockEmbeddingGenerator) GetModel() string {
	return "mock-embedding"
}

// Dimension returns the embedding dimension.
func (g *MockEmbeddingGenerator) Dimension() int {
	return mockEmbeddingDimension
}

// IsSemantic reports that mock vectors carry no semantic similarity.
func (g *MockEmbeddingGenerator) IsSemantic() bool {
	return false
}

// mockEmbedding hashes the text into a 32-bit seed, then fills each dimension
// with the fractional part of sin(seed+i)*10000 and normalizes to unit length.
func mockEmbedding(text string) []float32 {
	var hash int32
	for _, r := range text {
		hash = (hash << 5) - hash + int32(r)
	}

	vec := make([]float64, mockEmbeddingDimension)
	var sumSq float64
	for i := range vec {
		x := math.Sin(float64(hash)+float64(i)) * 10000
		x = x - math.Floor(x)
		vec[i] = x
		sumSq += x * x
	}

	norm := math.Sqrt(sumSq)
	out := make([]float32, mockEmbeddingDimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// Compile-time assertion.
var _ EmbeddingGenerator = (*MockEmbeddingGenerator)(nil)
