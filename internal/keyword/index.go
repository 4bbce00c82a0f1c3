// Package keyword provides the keyword (lexical) index over note title and content.
package keyword

import (
	"context"

	"github.com/latticenotes/lattice/internal/models"
)

// Index defines keyword search operations. Updates are synchronous with the
// note mutation that triggers them; the keyword index is never stale.
type Index interface {
	Index(ctx context.Context, id string, note *models.Note) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}
