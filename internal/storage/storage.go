// Package storage defines persistence for notes, embeddings, and similarity edges.
package storage

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/latticenotes/lattice/internal/models"
)

// NoteSort selects the ordering for note listings.
type NoteSort string

const (
	// SortUpdated orders by updated_at descending (default).
	SortUpdated NoteSort = "updated_at"
	// SortCreated orders by created_at descending.
	SortCreated NoteSort = "created_at"
	// SortTitle orders by title ascending.
	SortTitle NoteSort = "title"
)

// Storage defines note, embedding, and similarity edge persistence.
// Notes are the single source of truth; embeddings and edges are derived
// caches reconstructible from note content alone.
type Storage interface {
	// Note operations
	CreateNote(ctx context.Context, note *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	UpdateNote(ctx context.Context, note *models.Note) error
	DeleteNote(ctx context.Context, id string) error
	ListNotes(ctx context.Context, offset, limit int, sort NoteSort) ([]*models.Note, error)
	CountNotes(ctx context.Context) (int64, error)

	// Embedding operations
	//
	// PutEmbeddingIfCurrent writes the embedding only if the note's current
	// content version equals emb.ContentVersion, checked and written in one
	// transaction. It returns false when the write was discarded as stale.
	PutEmbeddingIfCurrent(ctx context.Context, emb *models.Embedding) (bool, error)
	GetEmbedding(ctx context.Context, noteID string) (*models.Embedding, error)
	ListEmbeddings(ctx context.Context) ([]*models.Embedding, error)
	DeleteEmbedding(ctx context.Context, noteID string) error
	CountEmbeddings(ctx context.Context) (int64, error)

	// Similarity edge operations. Edges are keyed by the canonical
	// (NoteA < NoteB) pair.
	ReplaceEdgesForNote(ctx context.Context, noteID string, edges []*models.SimilarityEdge) error
	ReplaceAllEdges(ctx context.Context, edges []*models.SimilarityEdge) error
	ListEdges(ctx context.Context, minSimilarity float64) ([]*models.SimilarityEdge, error)
	DeleteEdgesForNote(ctx context.Context, noteID string) error
	CountEdges(ctx context.Context) (int64, error)

	Close() error
}

// VectorToBlob encodes a vector as little-endian float32 bytes
// (dimension x 4 bytes).
func VectorToBlob(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(x))
	}
	return out
}

// BlobToVector decodes little-endian float32 bytes into a vector.
func BlobToVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
