package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/embedding"
	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/keyword"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/similarity"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
)

func newTestIndexer(t *testing.T) (*Indexer, *storage.SQLiteStorage, *vector.Index) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(dir + "/notes.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	kwIndex, err := keyword.NewBleveIndex(dir + "/bleve")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIndex.Close() })

	vecIndex, err := vector.NewIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	sim := similarity.NewCache(store, 0.5, nil)
	cfg := &config.IndexerConfig{QueueSize: 16, Workers: 2, ReindexBatchSize: 2, ReindexBatchesPS: 100}
	idx := NewIndexer(store, embedding.NewMockEmbedder(8), vecIndex, kwIndex, sim, cfg, nil)
	return idx, store, vecIndex
}

func createNote(t *testing.T, store *storage.SQLiteStorage, id, content string) *models.Note {
	t.Helper()
	note := &models.Note{ID: id, Title: "note " + id, Content: content}
	if err := store.CreateNote(context.Background(), note); err != nil {
		t.Fatal(err)
	}
	return note
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestIndexer_OnUpsertEmbedsAsync(t *testing.T) {
	ctx := context.Background()
	idx, store, vecIndex := newTestIndexer(t)
	idx.Start(ctx)
	defer idx.Close()

	note := createNote(t, store, "n1", "tomato seedlings need sun")
	if err := idx.OnUpsert(ctx, note); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		_, err := store.GetEmbedding(ctx, "n1")
		return err == nil
	})
	if vecIndex.Size() != 1 {
		t.Errorf("vector index size: got %d", vecIndex.Size())
	}
	emb, err := store.GetEmbedding(ctx, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if emb.ContentVersion != note.ContentVersion {
		t.Errorf("embedding version: got %d, want %d", emb.ContentVersion, note.ContentVersion)
	}
	if emb.ModelVersion != "mock-v1" {
		t.Errorf("model version: got %q", emb.ModelVersion)
	}
}

func TestIndexer_StaleJobDiscarded(t *testing.T) {
	ctx := context.Background()
	idx, store, vecIndex := newTestIndexer(t)

	note := createNote(t, store, "n1", "first draft")
	staleJob := embedJob{noteID: "n1", content: "first draft", contentVersion: note.ContentVersion}

	// The note changes before the first job runs.
	note.Content = "second draft"
	if err := store.UpdateNote(ctx, note); err != nil {
		t.Fatal(err)
	}
	freshJob := embedJob{noteID: "n1", content: "second draft", contentVersion: note.ContentVersion}

	// Fresh job lands first, slow stale job afterwards: the stale one must
	// not clobber it.
	idx.process(ctx, freshJob)
	idx.process(ctx, staleJob)

	emb, err := store.GetEmbedding(ctx, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if emb.ContentVersion != note.ContentVersion {
		t.Errorf("stale job overwrote fresh embedding: version %d", emb.ContentVersion)
	}
	if vecIndex.Size() != 1 {
		t.Errorf("vector index size: got %d", vecIndex.Size())
	}
}

func TestIndexer_StaleCommitCannotOvertakeFresh(t *testing.T) {
	ctx := context.Background()
	idx, store, vecIndex := newTestIndexer(t)

	want, err := embedding.NewMockEmbedder(8).Embed(ctx, "second draft")
	if err != nil {
		t.Fatal(err)
	}

	// An edit races with the embed job of the pre-edit content. Whatever the
	// interleaving, the vector index must end up serving the post-edit
	// vector: the stale job either commits first and is overwritten, or is
	// discarded by the version check.
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("n%d", i)
		note := createNote(t, store, id, "first draft")
		stale := embedJob{noteID: id, content: "first draft", contentVersion: note.ContentVersion}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			idx.process(ctx, stale)
		}()
		go func() {
			defer wg.Done()
			edited := *note
			edited.Content = "second draft"
			if err := store.UpdateNote(ctx, &edited); err != nil {
				t.Error(err)
				return
			}
			idx.process(ctx, embedJob{noteID: id, content: edited.Content, contentVersion: edited.ContentVersion})
		}()
		wg.Wait()

		got, ok := vecIndex.Get(id)
		if !ok {
			t.Fatalf("iteration %d: vector missing", i)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("iteration %d: index serves the pre-edit vector", i)
			}
		}
	}
}

func TestIndexer_JobForDeletedNoteIsNoop(t *testing.T) {
	ctx := context.Background()
	idx, store, vecIndex := newTestIndexer(t)

	note := createNote(t, store, "n1", "short lived note")
	job := embedJob{noteID: "n1", content: note.Content, contentVersion: note.ContentVersion}
	if err := store.DeleteNote(ctx, "n1"); err != nil {
		t.Fatal(err)
	}

	idx.process(ctx, job)
	if vecIndex.Size() != 0 {
		t.Errorf("vector written for deleted note")
	}
}

func TestIndexer_OnDelete(t *testing.T) {
	ctx := context.Background()
	idx, store, vecIndex := newTestIndexer(t)

	note := createNote(t, store, "n1", "tomato seedlings")
	idx.process(ctx, embedJob{noteID: "n1", content: note.Content, contentVersion: note.ContentVersion})
	if vecIndex.Size() != 1 {
		t.Fatal("setup: vector not written")
	}

	if err := store.DeleteNote(ctx, "n1"); err != nil {
		t.Fatal(err)
	}
	if err := idx.OnDelete(ctx, "n1"); err != nil {
		t.Fatal(err)
	}
	if vecIndex.Size() != 0 {
		t.Errorf("vector index size after delete: got %d", vecIndex.Size())
	}
}

func TestIndexer_ReindexAll(t *testing.T) {
	ctx := context.Background()
	idx, store, vecIndex := newTestIndexer(t)

	createNote(t, store, "n1", "alpha beta gamma")
	createNote(t, store, "n2", "alpha beta delta")
	createNote(t, store, "n3", "omega psi chi")

	var progress []models.ReindexProgress
	processed, err := idx.ReindexAll(ctx, func(p models.ReindexProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if processed != 3 {
		t.Errorf("processed: got %d", processed)
	}
	if len(progress) != 3 {
		t.Fatalf("progress events: got %d", len(progress))
	}
	last := progress[len(progress)-1]
	if last.Processed != 3 || last.Total != 3 {
		t.Errorf("final progress: %+v", last)
	}
	if vecIndex.Size() != 3 {
		t.Errorf("vector index size: got %d", vecIndex.Size())
	}
	count, err := store.CountEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("embeddings: got %d", count)
	}
	// Similar notes got edges.
	edges, err := store.ListEdges(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) == 0 {
		t.Error("expected similarity edges after reindex")
	}
	// The per-note updates during reindex leave the same edge set a full
	// recompute would produce.
	rebuilt, err := idx.similarity.RebuildAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt != len(edges) {
		t.Errorf("edge set after reindex: got %d edges, full rebuild yields %d", len(edges), rebuilt)
	}
}

func TestIndexer_ReindexAllRejectsConcurrent(t *testing.T) {
	idx, _, _ := newTestIndexer(t)
	idx.reindexing.Store(true)
	_, err := idx.ReindexAll(context.Background(), nil)
	if !errors.Is(err, errs.ErrAlreadyRunning) {
		t.Errorf("got %v", err)
	}
	if !idx.Reindexing() {
		t.Error("reindexing flag cleared by rejected call")
	}
}

func TestIndexer_LoadVectors(t *testing.T) {
	ctx := context.Background()
	idx, store, _ := newTestIndexer(t)

	// n1 has a current embedding, n2's is stale after an update.
	n1 := createNote(t, store, "n1", "current note")
	idx.process(ctx, embedJob{noteID: "n1", content: n1.Content, contentVersion: n1.ContentVersion})
	n2 := createNote(t, store, "n2", "old content")
	idx.process(ctx, embedJob{noteID: "n2", content: n2.Content, contentVersion: n2.ContentVersion})
	n2.Content = "new content"
	if err := store.UpdateNote(ctx, n2); err != nil {
		t.Fatal(err)
	}

	fresh, _, freshVec := newTestIndexerSharing(t, store)
	if err := fresh.LoadVectors(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := freshVec.Get("n1"); !ok {
		t.Error("current vector not loaded")
	}
	if _, ok := freshVec.Get("n2"); ok {
		t.Error("stale vector loaded")
	}
	// The stale note was re-enqueued for embedding.
	if len(fresh.jobs) != 1 {
		t.Errorf("queued jobs: got %d, want 1", len(fresh.jobs))
	}
}

// newTestIndexerSharing builds a second indexer over an existing store, as
// happens on restart.
func newTestIndexerSharing(t *testing.T, store *storage.SQLiteStorage) (*Indexer, *storage.SQLiteStorage, *vector.Index) {
	t.Helper()
	dir := t.TempDir()
	kwIndex, err := keyword.NewBleveIndex(dir + "/bleve")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIndex.Close() })
	vecIndex, err := vector.NewIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	sim := similarity.NewCache(store, 0.5, nil)
	cfg := &config.IndexerConfig{QueueSize: 16, Workers: 2, ReindexBatchSize: 2, ReindexBatchesPS: 100}
	idx := NewIndexer(store, embedding.NewMockEmbedder(8), vecIndex, kwIndex, sim, cfg, nil)
	return idx, store, vecIndex
}
