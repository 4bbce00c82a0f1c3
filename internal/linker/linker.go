// Package linker discovers latent links: notes semantically similar to a
// piece of draft content that carries no explicit reference to them.
package linker

import (
	"context"
	"crypto/sha256"
	"strings"

	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/embedding"
	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
	"github.com/latticenotes/lattice/pkg/utils"
)

// minFetch is the smallest candidate over-fetch. Candidates are fetched
// beyond the requested limit so filtering out the excluded note and
// below-threshold hits still leaves a full page.
const minFetch = 20

// Linker computes latent links for draft content.
type Linker struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	vectorIndex *vector.Index
	config      *config.LinkerConfig
	logger      *zap.Logger
	cache       *resultCache
}

// NewLinker creates a linker with a content-hash result cache.
func NewLinker(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex *vector.Index,
	cfg *config.LinkerConfig,
	logger *zap.Logger,
) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		storage:     st,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		config:      cfg,
		logger:      logger,
		cache:       newResultCache(cfg.CacheSize),
	}
}

// ComputeLinks returns notes similar to content, excluding excludeID,
// filtered to similarity >= threshold and capped at limit. Zero threshold
// and limit take the configured defaults. Content shorter than the
// configured minimum is rejected with ErrContentTooShort.
//
// Raw candidate lists are cached by content hash before filtering, so the
// same draft content re-queried with different parameters skips the
// embedding entirely.
func (l *Linker) ComputeLinks(ctx context.Context, content, excludeID string, threshold float64, limit int) ([]*models.LatentLink, error) {
	if len(strings.TrimSpace(content)) < l.config.MinContentLength {
		return nil, errs.ErrContentTooShort
	}
	if threshold == 0 {
		threshold = l.config.DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, errs.Validation("threshold must be in [0,1], got %v", threshold)
	}
	if limit <= 0 {
		limit = l.config.DefaultLimit
	}

	key := sha256.Sum256([]byte(content))
	hits, ok := l.cache.get(key)
	if !ok {
		vec, err := l.embedder.Embed(ctx, content)
		if err != nil {
			return nil, errs.Embedding(err)
		}
		fetch := limit * 3
		if fetch < minFetch {
			fetch = minFetch
		}
		hits, err = l.vectorIndex.Search(ctx, vec, fetch)
		if err != nil {
			return nil, err
		}
		l.cache.set(key, hits)
	}

	links := make([]*models.LatentLink, 0, limit)
	for _, hit := range hits {
		if hit.ID == excludeID || hit.Score < threshold {
			continue
		}
		note, err := l.storage.GetNote(ctx, hit.ID)
		if err != nil {
			// Vector index can briefly hold a just-deleted note.
			continue
		}
		links = append(links, &models.LatentLink{
			NoteID:     note.ID,
			Title:      note.Title,
			Similarity: hit.Score,
			Snippet:    utils.Snippet(note.Content),
		})
		if len(links) == limit {
			break
		}
	}
	return links, nil
}
