package keyword

import (
	"context"
	"testing"

	"github.com/latticenotes/lattice/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(t.TempDir() + "/bleve")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBleveIndex_IndexAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	notes := []*models.Note{
		{ID: "n1", Title: "Gardening", Content: "tomato seedlings need full sun"},
		{ID: "n2", Title: "Cooking", Content: "roast the tomato with olive oil"},
		{ID: "n3", Title: "Astronomy", Content: "jupiter rises after midnight"},
	}
	for _, n := range notes {
		if err := idx.Index(ctx, n.ID, n); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := idx.Search(ctx, "tomato", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: got %d, want 2", len(hits))
	}
	for _, h := range hits {
		if h.ID == "n3" {
			t.Error("unrelated note matched")
		}
		if h.Score <= 0 {
			t.Errorf("score: got %v", h.Score)
		}
	}
}

func TestBleveIndex_TitleSearchable(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	note := &models.Note{ID: "n1", Title: "Kubernetes", Content: "cluster orchestration basics"}
	if err := idx.Index(ctx, note.ID, note); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "kubernetes", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("title match: got %d hits", len(hits))
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	note := &models.Note{ID: "n1", Title: "T", Content: "unique zebra content"}
	if err := idx.Index(ctx, note.ID, note); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, "n1"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "zebra", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted note still matched: %d hits", len(hits))
	}
}

func TestBleveIndex_OperatorQueryNeutralized(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	note := &models.Note{ID: "n1", Title: "T", Content: "alpha beta"}
	if err := idx.Index(ctx, note.ID, note); err != nil {
		t.Fatal(err)
	}
	// A query of pure operator syntax sanitizes to nothing and returns
	// no hits rather than an index error.
	hits, err := idx.Search(ctx, "AND (title:x)", 10)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Errorf("expected nil hits, got %v", hits)
	}
}
