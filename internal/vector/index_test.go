package vector

import (
	"context"
	"testing"
)

func TestIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(3)
	if err != nil {
		t.Fatal(err)
	}

	_ = idx.Upsert(ctx, "a", []float32{1, 0, 0})
	_ = idx.Upsert(ctx, "b", []float32{0, 1, 0})
	_ = idx.Upsert(ctx, "c", []float32{0.9, 0.1, 0})

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: got %d", len(hits))
	}
	if hits[0].ID != "a" {
		t.Errorf("top hit: got %s", hits[0].ID)
	}
	if hits[1].ID != "c" {
		t.Errorf("second hit: got %s", hits[1].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not ordered by score")
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewIndex(2)
	_ = idx.Upsert(ctx, "a", []float32{1, 0})
	_ = idx.Upsert(ctx, "a", []float32{0, 1})
	if idx.Size() != 1 {
		t.Fatalf("size: got %d", idx.Size())
	}
	v, ok := idx.Get("a")
	if !ok || v[0] != 0 || v[1] != 1 {
		t.Errorf("got %v, %v", v, ok)
	}
}

func TestIndex_Remove(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewIndex(2)
	_ = idx.Upsert(ctx, "a", []float32{1, 0})
	_ = idx.Remove(ctx, "a")
	_ = idx.Remove(ctx, "a") // absent id is a no-op
	if idx.Size() != 0 {
		t.Errorf("size: got %d", idx.Size())
	}
	if _, ok := idx.Get("a"); ok {
		t.Error("removed vector still present")
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewIndex(3)
	if err := idx.Upsert(ctx, "a", []float32{1, 0}); err == nil {
		t.Error("expected dimension error on upsert")
	}
	if _, err := idx.Search(ctx, []float32{1, 0}, 5); err == nil {
		t.Error("expected dimension error on search")
	}
}

func TestIndex_SearchTieBreaksByID(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewIndex(2)
	_ = idx.Upsert(ctx, "b", []float32{1, 0})
	_ = idx.Upsert(ctx, "a", []float32{1, 0})
	hits, _ := idx.Search(ctx, []float32{1, 0}, 2)
	if hits[0].ID != "a" || hits[1].ID != "b" {
		t.Errorf("tie order: got %s, %s", hits[0].ID, hits[1].ID)
	}
}

func TestIndex_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewIndex(2)
	_ = idx.Upsert(ctx, "a", []float32{1, 0})
	v, _ := idx.Get("a")
	v[0] = 99
	again, _ := idx.Get("a")
	if again[0] != 1 {
		t.Error("Get leaked internal slice")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical: got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal: got %v", got)
	}
	// Opposed vectors clamp to 0 rather than going negative.
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("opposed: got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("length mismatch: got %v", got)
	}
}

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 2}, []float32{3, 4}); got != 11 {
		t.Errorf("got %v", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatch: got %v", got)
	}
}
