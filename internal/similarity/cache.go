// Package similarity maintains the sparse thresholded graph of pairwise
// note similarities.
//
// Edges exist only for pairs whose cosine similarity meets the store
// threshold, keyed by the canonical (smaller id, larger id) pair. The cache
// is derived state: it is updated incrementally per changed note and can be
// rebuilt in full from stored embeddings at any time.
package similarity

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
)

// Cache maintains similarity edges in storage.
type Cache struct {
	storage        storage.Storage
	storeThreshold float64
	logger         *zap.Logger
	// Serializes all edge writes. Writes are rare relative to reads at the
	// target corpus scale, so global serialization is cheaper than
	// per-note coordination.
	mu sync.Mutex
}

// NewCache creates a similarity cache writing edges at storeThreshold.
func NewCache(st storage.Storage, storeThreshold float64, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		storage:        st,
		storeThreshold: storeThreshold,
		logger:         logger,
	}
}

// StoreThreshold returns the threshold edges are persisted at.
func (c *Cache) StoreThreshold() float64 {
	return c.storeThreshold
}

// UpdateForNote recomputes all edges touching noteID against every other
// stored embedding. This is the one place an O(n) scan per affected note is
// acceptable: it runs once per changed note, never per query. If the note
// has no embedding (deleted, or not yet indexed), its edges are removed.
func (c *Cache) UpdateForNote(ctx context.Context, noteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	emb, err := c.storage.GetEmbedding(ctx, noteID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return c.storage.DeleteEdgesForNote(ctx, noteID)
		}
		return err
	}

	others, err := c.storage.ListEmbeddings(ctx)
	if err != nil {
		return err
	}

	var edges []*models.SimilarityEdge
	for _, other := range others {
		if other.NoteID == noteID {
			continue
		}
		sim := vector.CosineSimilarity(emb.Vector, other.Vector)
		if sim < c.storeThreshold {
			continue
		}
		edges = append(edges, canonicalEdge(noteID, other.NoteID, sim))
	}

	if err := c.storage.ReplaceEdgesForNote(ctx, noteID, edges); err != nil {
		return err
	}
	c.logger.Debug("similarity edges updated",
		zap.String("note_id", noteID), zap.Int("edges", len(edges)))
	return nil
}

// RebuildAll recomputes the full edge set from all stored embeddings.
// O(n^2); only ever run as an explicit maintenance operation.
func (c *Cache) RebuildAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	embs, err := c.storage.ListEmbeddings(ctx)
	if err != nil {
		return 0, err
	}
	sort.Slice(embs, func(i, j int) bool { return embs[i].NoteID < embs[j].NoteID })

	var edges []*models.SimilarityEdge
	for i := 0; i < len(embs); i++ {
		for j := i + 1; j < len(embs); j++ {
			sim := vector.CosineSimilarity(embs[i].Vector, embs[j].Vector)
			if sim < c.storeThreshold {
				continue
			}
			edges = append(edges, canonicalEdge(embs[i].NoteID, embs[j].NoteID, sim))
		}
	}

	if err := c.storage.ReplaceAllEdges(ctx, edges); err != nil {
		return 0, err
	}
	c.logger.Info("similarity cache rebuilt",
		zap.Int("embeddings", len(embs)), zap.Int("edges", len(edges)))
	return len(edges), nil
}

// Graph returns the similarity graph at the given threshold: every note as
// a node with its single-linkage cluster, plus all edges meeting the
// threshold. When centerID is set, the result is restricted to the
// center's cluster. Thresholds below the store threshold are rejected
// because those edges were never persisted.
func (c *Cache) Graph(ctx context.Context, centerID string, threshold float64) (*models.GraphData, error) {
	if threshold < 0 || threshold > 1 {
		return nil, errs.Validation("threshold must be in [0,1], got %v", threshold)
	}
	if threshold < c.storeThreshold {
		return nil, errs.Validation("threshold %v below stored threshold %v", threshold, c.storeThreshold)
	}

	total, err := c.storage.CountNotes(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := c.storage.ListNotes(ctx, 0, int(total), storage.SortCreated)
	if err != nil {
		return nil, err
	}
	if centerID != "" {
		if _, err := c.storage.GetNote(ctx, centerID); err != nil {
			return nil, err
		}
	}

	edges, err := c.storage.ListEdges(ctx, threshold)
	if err != nil {
		return nil, err
	}

	idToIdx := make(map[string]int, len(notes))
	for i, note := range notes {
		idToIdx[note.ID] = i
	}
	uf := newUnionFind(len(notes))
	for _, e := range edges {
		a, okA := idToIdx[e.NoteA]
		b, okB := idToIdx[e.NoteB]
		if okA && okB {
			uf.union(a, b)
		}
	}

	// Assign cluster numbers in note order so the output is deterministic
	// for a given edge set.
	rootToCluster := make(map[int]int)
	nodes := make([]*models.GraphNode, 0, len(notes))
	clusterOf := make(map[string]int, len(notes))
	for i, note := range notes {
		root := uf.find(i)
		cluster, ok := rootToCluster[root]
		if !ok {
			cluster = len(rootToCluster)
			rootToCluster[root] = cluster
		}
		clusterOf[note.ID] = cluster
		nodes = append(nodes, &models.GraphNode{ID: note.ID, Title: note.Title, Cluster: cluster})
	}

	if centerID == "" {
		return &models.GraphData{Nodes: nodes, Edges: edges}, nil
	}

	center := clusterOf[centerID]
	filteredNodes := make([]*models.GraphNode, 0)
	for _, n := range nodes {
		if n.Cluster == center {
			filteredNodes = append(filteredNodes, n)
		}
	}
	filteredEdges := make([]*models.SimilarityEdge, 0)
	for _, e := range edges {
		if clusterOf[e.NoteA] == center && clusterOf[e.NoteB] == center {
			filteredEdges = append(filteredEdges, e)
		}
	}
	return &models.GraphData{Nodes: filteredNodes, Edges: filteredEdges}, nil
}

// canonicalEdge orders the pair so NoteA < NoteB.
func canonicalEdge(a, b string, sim float64) *models.SimilarityEdge {
	if b < a {
		a, b = b, a
	}
	return &models.SimilarityEdge{NoteA: a, NoteB: b, Similarity: sim}
}
