// Package indexer keeps the keyword index, vector index, and similarity
// cache consistent with note state.
//
// Keyword updates are synchronous with the triggering mutation and abort it
// on failure. Embedding is asynchronous: mutations enqueue a job tagged with
// the note's content version onto a bounded queue consumed by a small fixed
// worker pool, and a job whose version no longer matches the note at write
// time is discarded (last-writer-by-version-wins).
package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/embedding"
	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/keyword"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/similarity"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
)

type embedJob struct {
	noteID         string
	content        string
	contentVersion int64
}

// Indexer orchestrates index maintenance for note mutations.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  *vector.Index
	keywordIndex keyword.Index
	similarity   *similarity.Cache
	config       *config.IndexerConfig
	logger       *zap.Logger

	jobs       chan embedJob
	wg         sync.WaitGroup
	started    atomic.Bool
	reindexing atomic.Bool
	closeOnce  sync.Once
	// Serializes the storage write and the vector index upsert of one
	// embedding. The version check inside PutEmbeddingIfCurrent only covers
	// the storage write; without this lock a stale job that passed the check
	// could land its vector after a fresher job has already committed both.
	commitMu sync.Mutex
}

// NewIndexer creates an indexer. Call Start to launch the embedding workers.
func NewIndexer(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex *vector.Index,
	keywordIndex keyword.Index,
	sim *similarity.Cache,
	cfg *config.IndexerConfig,
	logger *zap.Logger,
) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		storage:      st,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		similarity:   sim,
		config:       cfg,
		logger:       logger,
		jobs:         make(chan embedJob, cfg.QueueSize),
	}
}

// Start launches the embedding worker pool. Workers run until Close is
// called and the queue drains, or ctx is cancelled.
func (idx *Indexer) Start(ctx context.Context) {
	if !idx.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < idx.config.Workers; i++ {
		idx.wg.Add(1)
		go idx.worker(ctx)
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (idx *Indexer) Close() {
	idx.closeOnce.Do(func() {
		close(idx.jobs)
	})
	idx.wg.Wait()
}

// OnUpsert indexes a created or updated note: the keyword index is updated
// synchronously (a failure aborts the mutation), then an embedding job for
// the note's current content version is enqueued. Enqueueing blocks when
// the queue is full, applying backpressure to the mutating caller.
func (idx *Indexer) OnUpsert(ctx context.Context, note *models.Note) error {
	if err := idx.keywordIndex.Index(ctx, note.ID, note); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	job := embedJob{
		noteID:         note.ID,
		content:        note.Content,
		contentVersion: note.ContentVersion,
	}
	select {
	case idx.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnDelete removes a deleted note from all indices. The storage layer has
// already dropped the note row, its embedding, and its edges; this clears
// the in-memory and keyword state.
func (idx *Indexer) OnDelete(ctx context.Context, id string) error {
	if err := idx.keywordIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := idx.vectorIndex.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	idx.logger.Debug("note removed from indices", zap.String("id", id))
	return nil
}

func (idx *Indexer) worker(ctx context.Context) {
	defer idx.wg.Done()
	for {
		select {
		case job, ok := <-idx.jobs:
			if !ok {
				return
			}
			idx.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

// process embeds one job and commits the result unless it is stale.
// Failures here never propagate to the mutation that enqueued the job; the
// note stays pending until a later mutation or reindex retries it.
func (idx *Indexer) process(ctx context.Context, job embedJob) {
	vec, err := idx.embedder.Embed(ctx, job.content)
	if err != nil {
		idx.logger.Warn("embedding job failed, note left pending",
			zap.String("note_id", job.noteID),
			zap.Int64("content_version", job.contentVersion),
			zap.Error(err))
		return
	}

	written, err := idx.commitEmbedding(ctx, job.noteID, job.contentVersion, vec)
	if err != nil {
		idx.logger.Error("embedding write failed",
			zap.String("note_id", job.noteID), zap.Error(err))
		return
	}
	if !written {
		idx.logger.Debug("stale embedding discarded",
			zap.String("note_id", job.noteID),
			zap.Int64("content_version", job.contentVersion))
		return
	}

	if err := idx.similarity.UpdateForNote(ctx, job.noteID); err != nil {
		idx.logger.Error("similarity update failed",
			zap.String("note_id", job.noteID), zap.Error(err))
	}
}

// commitEmbedding writes an embedding to storage and the vector index as one
// serialized step. The storage write re-checks the note's content version and
// reports written=false for stale or deleted-note jobs, in which case the
// vector index is left untouched.
func (idx *Indexer) commitEmbedding(ctx context.Context, noteID string, contentVersion int64, vec []float32) (bool, error) {
	idx.commitMu.Lock()
	defer idx.commitMu.Unlock()
	written, err := idx.storage.PutEmbeddingIfCurrent(ctx, &models.Embedding{
		NoteID:         noteID,
		Vector:         vec,
		ModelVersion:   idx.embedder.ModelVersion(),
		ContentVersion: contentVersion,
	})
	if err != nil || !written {
		return written, err
	}
	return true, idx.vectorIndex.Upsert(ctx, noteID, vec)
}

// LoadVectors rebuilds the in-memory vector index from stored embeddings at
// startup. Embeddings whose content version no longer matches the note are
// treated as pending and re-enqueued instead of loaded.
func (idx *Indexer) LoadVectors(ctx context.Context) error {
	embs, err := idx.storage.ListEmbeddings(ctx)
	if err != nil {
		return err
	}
	loaded := 0
	for _, emb := range embs {
		note, err := idx.storage.GetNote(ctx, emb.NoteID)
		if err != nil {
			continue
		}
		if note.ContentVersion != emb.ContentVersion {
			if err := idx.OnUpsert(ctx, note); err != nil {
				return err
			}
			continue
		}
		if err := idx.vectorIndex.Upsert(ctx, emb.NoteID, emb.Vector); err != nil {
			return err
		}
		loaded++
	}
	idx.logger.Info("vector index loaded", zap.Int("vectors", loaded))
	return nil
}

// ReindexAll re-embeds and re-indexes every note in fixed-size batches with
// a rate-limited yield between batches so interactive requests stay
// responsive. A concurrent call is rejected with ErrAlreadyRunning.
// Progress is reported through the callback after each note.
func (idx *Indexer) ReindexAll(ctx context.Context, progress func(models.ReindexProgress)) (int, error) {
	if !idx.reindexing.CompareAndSwap(false, true) {
		return 0, errs.ErrAlreadyRunning
	}
	defer idx.reindexing.Store(false)

	totalCount, err := idx.storage.CountNotes(ctx)
	if err != nil {
		return 0, err
	}
	total := int(totalCount)
	limiter := rate.NewLimiter(rate.Limit(idx.config.ReindexBatchesPS), 1)

	processed := 0
	for offset := 0; offset < total; offset += idx.config.ReindexBatchSize {
		if err := limiter.Wait(ctx); err != nil {
			return processed, err
		}
		batch, err := idx.storage.ListNotes(ctx, offset, idx.config.ReindexBatchSize, storage.SortCreated)
		if err != nil {
			return processed, err
		}
		for _, note := range batch {
			if err := idx.reindexNote(ctx, note); err != nil {
				idx.logger.Warn("reindex note failed",
					zap.String("note_id", note.ID), zap.Error(err))
			}
			processed++
			if progress != nil {
				progress(models.ReindexProgress{
					Processed:    processed,
					Total:        total,
					CurrentTitle: note.Title,
				})
			}
		}
	}
	idx.logger.Info("reindex complete", zap.Int("processed", processed))
	return processed, nil
}

// reindexNote rebuilds all derived state for one note synchronously.
func (idx *Indexer) reindexNote(ctx context.Context, note *models.Note) error {
	if err := idx.keywordIndex.Index(ctx, note.ID, note); err != nil {
		return err
	}
	vec, err := idx.embedder.Embed(ctx, note.Content)
	if err != nil {
		return err
	}
	written, err := idx.commitEmbedding(ctx, note.ID, note.ContentVersion, vec)
	if err != nil {
		return err
	}
	if !written {
		// The note changed while reindexing; its own embed job wins.
		return nil
	}
	return idx.similarity.UpdateForNote(ctx, note.ID)
}

// Reindexing reports whether a bulk reindex is currently running.
func (idx *Indexer) Reindexing() bool {
	return idx.reindexing.Load()
}
