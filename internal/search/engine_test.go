package search

import (
	"context"
	"errors"
	"testing"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/embedding"
	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/keyword"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
)

type testFixture struct {
	store    *storage.SQLiteStorage
	embedder embedding.Embedder
	vecIndex *vector.Index
	kwIndex  *keyword.BleveIndex
	engine   *Engine
}

func newFixture(t *testing.T, embedder embedding.Embedder) *testFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(dir + "/notes.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	vecIndex, err := vector.NewIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	kwIndex, err := keyword.NewBleveIndex(dir + "/bleve")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIndex.Close() })

	cfg := &config.SearchConfig{DefaultLimit: 10, MaxLimit: 100, MaxQueryLength: 1024, TopKCandidates: 20}
	return &testFixture{
		store:    store,
		embedder: embedder,
		vecIndex: vecIndex,
		kwIndex:  kwIndex,
		engine:   NewEngine(store, embedder, vecIndex, kwIndex, cfg, nil),
	}
}

// addNote persists and indexes a note through every retrieval path.
func (f *testFixture) addNote(t *testing.T, id, title, content string) {
	t.Helper()
	ctx := context.Background()
	note := &models.Note{ID: id, Title: title, Content: content}
	if err := f.store.CreateNote(ctx, note); err != nil {
		t.Fatal(err)
	}
	if err := f.kwIndex.Index(ctx, id, note); err != nil {
		t.Fatal(err)
	}
	vec, err := f.embedder.Embed(ctx, content)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.vecIndex.Upsert(ctx, id, vec); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_LexicalSearch(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	f.addNote(t, "n1", "Gardening", "tomato seedlings need sun")
	f.addNote(t, "n2", "Astronomy", "jupiter rises after midnight")

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: "tomato", Mode: models.ModeLexical})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results: got %d", len(resp.Results))
	}
	if resp.Results[0].NoteID != "n1" {
		t.Errorf("hit: got %s", resp.Results[0].NoteID)
	}
	if resp.Results[0].MatchType != models.MatchLexical {
		t.Errorf("match type: got %s", resp.Results[0].MatchType)
	}
}

func TestEngine_SemanticSearch(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	f.addNote(t, "n1", "A", "tomato seedlings in spring")
	f.addNote(t, "n2", "B", "quantum field theory notes")

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{
		Query: "tomato seedlings in spring", Mode: models.ModeSemantic, Limit: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].NoteID != "n1" {
		t.Fatalf("got %+v", resp.Results)
	}
	if resp.Results[0].MatchType != models.MatchSemantic {
		t.Errorf("match type: got %s", resp.Results[0].MatchType)
	}
}

func TestEngine_HybridBothListsWin(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	// n1 matches lexically and semantically; n2 only lexically.
	f.addNote(t, "n1", "A", "sourdough bread baking")
	f.addNote(t, "n2", "B", "bread prices in 1970")

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{
		Query: "sourdough bread baking", Mode: models.ModeHybrid,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) < 2 {
		t.Fatalf("results: got %d", len(resp.Results))
	}
	if resp.Results[0].NoteID != "n1" {
		t.Errorf("top hit: got %s", resp.Results[0].NoteID)
	}
	if resp.Results[0].MatchType != models.MatchBoth {
		t.Errorf("top match type: got %s", resp.Results[0].MatchType)
	}
	if resp.Degraded {
		t.Error("unexpected degraded flag")
	}
}

func TestEngine_EmptyQuery(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	_, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: ""})
	if !errors.Is(err, errs.ErrEmptyQuery) {
		t.Errorf("got %v", err)
	}
}

// brokenEmbedder fails every call, standing in for a missing model.
type brokenEmbedder struct{}

func (brokenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errs.Embedding(errors.New("model unavailable"))
}
func (brokenEmbedder) Dimensions() int      { return 8 }
func (brokenEmbedder) ModelVersion() string { return "broken" }
func (brokenEmbedder) Close() error         { return nil }

func TestEngine_HybridDegradesWithoutEmbeddings(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	f.addNote(t, "n1", "A", "tomato seedlings need sun")

	// Swap in a broken embedder after indexing so only the query side fails.
	f.engine.embedder = brokenEmbedder{}

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{
		Query: "tomato", Mode: models.ModeHybrid,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Degraded {
		t.Error("expected degraded response")
	}
	if len(resp.Results) != 1 {
		t.Fatalf("lexical results: got %d", len(resp.Results))
	}
	if resp.Results[0].MatchType != models.MatchLexical {
		t.Errorf("match type: got %s", resp.Results[0].MatchType)
	}
}

func TestEngine_SemanticModeFailsWithoutEmbeddings(t *testing.T) {
	f := newFixture(t, brokenEmbedder{})
	_, err := f.engine.Search(context.Background(), &models.SearchQuery{
		Query: "anything", Mode: models.ModeSemantic,
	})
	if !errors.Is(err, errs.ErrEmbedding) {
		t.Errorf("got %v", err)
	}
}

func TestEngine_SkipsDeletedNotes(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	f.addNote(t, "n1", "A", "tomato seedlings")

	// Note row gone, index entries briefly stale.
	if err := f.store.DeleteNote(context.Background(), "n1"); err != nil {
		t.Fatal(err)
	}

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{
		Query: "tomato", Mode: models.ModeHybrid,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("deleted note surfaced: %+v", resp.Results)
	}
}

func TestEngine_DefaultLimitFromConfig(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	f.addNote(t, "n1", "A", "alpha shared words here")
	f.addNote(t, "n2", "B", "alpha shared words there")
	f.addNote(t, "n3", "C", "alpha shared words everywhere")

	cfg := &config.SearchConfig{DefaultLimit: 2, MaxLimit: 100, MaxQueryLength: 1024, TopKCandidates: 20}
	engine := NewEngine(f.store, f.embedder, f.vecIndex, f.kwIndex, cfg, nil)

	// No limit on the query: the configured default applies.
	resp, err := engine.Search(context.Background(), &models.SearchQuery{
		Query: "alpha shared words", Mode: models.ModeHybrid,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results: got %d, want configured default 2", len(resp.Results))
	}
}

// failingKeywordIndex reports a lower-layer failure on every search.
type failingKeywordIndex struct{}

func (failingKeywordIndex) Index(ctx context.Context, id string, note *models.Note) error {
	return nil
}
func (failingKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*keyword.Result, error) {
	return nil, errors.New("index unreadable")
}
func (failingKeywordIndex) Delete(ctx context.Context, id string) error { return nil }
func (failingKeywordIndex) DocCount() (uint64, error)                   { return 0, nil }
func (failingKeywordIndex) Close() error                                { return nil }

func TestEngine_IndexFailureIsInternal(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	engine := NewEngine(f.store, f.embedder, f.vecIndex, failingKeywordIndex{}, f.engine.config, nil)

	for _, mode := range []models.SearchMode{models.ModeLexical, models.ModeHybrid} {
		_, err := engine.Search(context.Background(), &models.SearchQuery{Query: "x", Mode: mode})
		if !errors.Is(err, errs.ErrInternal) {
			t.Errorf("%s: got %v, want ErrInternal", mode, err)
		}
	}
}

func TestEngine_LimitTruncates(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8))
	f.addNote(t, "n1", "A", "alpha shared words here")
	f.addNote(t, "n2", "B", "alpha shared words there")
	f.addNote(t, "n3", "C", "alpha shared words everywhere")

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{
		Query: "alpha shared words", Mode: models.ModeHybrid, Limit: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results: got %d, want 2", len(resp.Results))
	}
}
