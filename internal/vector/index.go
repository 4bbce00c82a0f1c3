// Package vector provides the in-memory vector index and similarity helpers.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is a single vector search hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity for unit vectors
}

// Index is an in-memory brute-force vector index over one vector per note.
// Vectors are unit-normalized, so inner product equals cosine similarity.
// It is rebuilt from storage at startup; persistence lives in the embeddings
// table, not here. Safe for concurrent readers with serialized writers.
type Index struct {
	dimensions int
	vectors    map[string][]float32
	mu         sync.RWMutex
}

// NewIndex creates an empty index with the given dimension.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &Index{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
	}, nil
}

// Upsert stores the vector for id, replacing any previous vector atomically.
func (x *Index) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) != x.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), x.dimensions)
	}
	cp := make([]float32, x.dimensions)
	copy(cp, vec)
	x.mu.Lock()
	x.vectors[id] = cp
	x.mu.Unlock()
	return nil
}

// Remove deletes the vector for id. Removing an absent id is a no-op.
func (x *Index) Remove(ctx context.Context, id string) error {
	x.mu.Lock()
	delete(x.vectors, id)
	x.mu.Unlock()
	return nil
}

// Get returns a copy of the vector for id.
func (x *Index) Get(id string) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	vec, ok := x.vectors[id]
	if !ok {
		return nil, false
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp, true
}

// Search returns the top-k vectors by cosine similarity, ordered by
// descending score with ties broken by id for reproducible output.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dimensions)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	scores := make([]*Result, 0, len(x.vectors))
	for id, vec := range x.vectors {
		scores = append(scores, &Result{ID: id, Score: InnerProduct(query, vec)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Size returns the number of vectors in the index.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimensions returns the index vector dimension.
func (x *Index) Dimensions() int {
	return x.dimensions
}
