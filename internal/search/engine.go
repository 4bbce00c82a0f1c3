// Package search provides the main hybrid search engine.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/embedding"
	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/keyword"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
	"github.com/latticenotes/lattice/pkg/utils"
)

// Engine runs lexical, semantic, and hybrid search over the note corpus.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  *vector.Index
	keywordIndex keyword.Index
	config       *config.SearchConfig
	logger       *zap.Logger
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex *vector.Index,
	keywordIndex keyword.Index,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		storage:      st,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		config:       cfg,
		logger:       logger,
	}
}

// Search runs the query in the requested mode and returns ranked results.
// In hybrid mode an embedding failure degrades the response to
// lexical-only results rather than failing the request.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.DefaultLimit, e.config.MaxLimit, e.config.MaxQueryLength); err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Query: query.Query,
		Mode:  query.Mode,
	}

	switch query.Mode {
	case models.ModeLexical:
		hits, err := e.keywordIndex.Search(ctx, query.Query, query.Limit)
		if err != nil {
			return nil, errs.Internal(fmt.Errorf("keyword search failed: %w", err))
		}
		for _, hit := range hits {
			if r := e.result(ctx, hit.ID, hit.Score, models.MatchLexical); r != nil {
				response.Results = append(response.Results, r)
			}
		}

	case models.ModeSemantic:
		hits, err := e.semanticSearch(ctx, query.Query, query.Limit)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if r := e.result(ctx, hit.ID, hit.Score, models.MatchSemantic); r != nil {
				response.Results = append(response.Results, r)
			}
		}

	case models.ModeHybrid:
		results, degraded, err := e.hybridSearch(ctx, query)
		if err != nil {
			return nil, err
		}
		response.Results = results
		response.Degraded = degraded
	}

	if response.Results == nil {
		response.Results = []*models.SearchResult{}
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// semanticSearch embeds the query and returns nearest neighbors by
// descending cosine similarity.
func (e *Engine) semanticSearch(ctx context.Context, query string, limit int) ([]*vector.Result, error) {
	queryEmbedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, errs.ErrEmbedding) {
			return nil, err
		}
		return nil, errs.Embedding(err)
	}
	hits, err := e.vectorIndex.Search(ctx, queryEmbedding, limit)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("vector search failed: %w", err))
	}
	return hits, nil
}

// hybridSearch runs both retrievals in parallel at the configured candidate
// depth, fuses the ranked lists by reciprocal rank fusion, and truncates to
// the requested limit. Fetching deeper than the limit lets a note ranked
// past the first page of either list still win on combined evidence. Ties
// on the fused score break by most-recent update for stable ordering.
func (e *Engine) hybridSearch(ctx context.Context, query *models.SearchQuery) ([]*models.SearchResult, bool, error) {
	depth := e.config.TopKCandidates
	if depth < query.Limit {
		depth = query.Limit
	}

	var (
		keywordHits  []*keyword.Result
		semanticHits []*vector.Result
		keywordErr   error
		semanticErr  error
		wg           sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = e.keywordIndex.Search(ctx, query.Query, depth)
	}()
	go func() {
		defer wg.Done()
		semanticHits, semanticErr = e.semanticSearch(ctx, query.Query, depth)
	}()
	wg.Wait()

	if keywordErr != nil {
		return nil, false, errs.Internal(fmt.Errorf("keyword search failed: %w", keywordErr))
	}
	degraded := false
	if semanticErr != nil {
		// Availability over completeness: a failed embedding downgrades the
		// request to lexical-only instead of failing it.
		e.logger.Warn("hybrid search degraded to lexical-only", zap.Error(semanticErr))
		semanticHits = nil
		degraded = true
	}

	lexicalIDs := make([]string, len(keywordHits))
	for i, h := range keywordHits {
		lexicalIDs[i] = h.ID
	}
	semanticIDs := make([]string, len(semanticHits))
	for i, h := range semanticHits {
		semanticIDs[i] = h.ID
	}
	fused := FuseRRF(lexicalIDs, semanticIDs, RRFK)

	type candidate struct {
		fused *Fused
		note  *models.Note
	}
	candidates := make([]*candidate, 0, len(fused))
	for _, f := range fused {
		note, err := e.storage.GetNote(ctx, f.NoteID)
		if err != nil {
			// Index can briefly reference a just-deleted note; skip it.
			continue
		}
		candidates = append(candidates, &candidate{fused: f, note: note})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].fused.Score != candidates[j].fused.Score {
			return candidates[i].fused.Score > candidates[j].fused.Score
		}
		if !candidates[i].note.UpdatedAt.Equal(candidates[j].note.UpdatedAt) {
			return candidates[i].note.UpdatedAt.After(candidates[j].note.UpdatedAt)
		}
		return candidates[i].note.ID < candidates[j].note.ID
	})
	if len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}

	results := make([]*models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, &models.SearchResult{
			NoteID:    c.note.ID,
			Title:     c.note.Title,
			Snippet:   utils.Snippet(c.note.Content),
			Score:     c.fused.Score,
			MatchType: c.fused.MatchType,
		})
	}
	return results, degraded, nil
}

// result builds a SearchResult for a single-list hit, or nil if the note
// no longer exists.
func (e *Engine) result(ctx context.Context, id string, score float64, match models.MatchType) *models.SearchResult {
	note, err := e.storage.GetNote(ctx, id)
	if err != nil {
		return nil
	}
	return &models.SearchResult{
		NoteID:    note.ID,
		Title:     note.Title,
		Snippet:   utils.Snippet(note.Content),
		Score:     score,
		MatchType: match,
	}
}
