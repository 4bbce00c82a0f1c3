package embedding

import (
	"context"
	"math"

	"github.com/latticenotes/lattice/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed
// dimension unit vector derived from word hashes, so identical text always
// gets an identical embedding and texts sharing words land near each other.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings
// of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding: the sum of per-word hash vectors,
// normalized to unit length. Word overlap therefore raises cosine similarity,
// which is enough structure for search and linking tests.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed, err := checkInput(text)
	if err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(trimmed) {
		h := HashString(word)
		for i := 0; i < e.dimensions; i++ {
			emb[i] += float32(math.Sin(float64(h*(i+1))) * 0.1)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelVersion identifies the mock model.
func (e *MockEmbedder) ModelVersion() string {
	return "mock-v1"
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
