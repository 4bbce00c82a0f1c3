package models

import (
	"errors"
	"testing"

	"github.com/latticenotes/lattice/internal/errs"
)

func TestSearchQuery_Validate_Defaults(t *testing.T) {
	q := &SearchQuery{Query: "hello"}
	if err := q.Validate(10, 100, 1024); err != nil {
		t.Fatal(err)
	}
	if q.Mode != ModeHybrid {
		t.Errorf("mode: got %q, want hybrid", q.Mode)
	}
	if q.Limit != 10 {
		t.Errorf("limit: got %d, want 10", q.Limit)
	}
}

func TestSearchQuery_Validate_ConfiguredDefaultLimit(t *testing.T) {
	q := &SearchQuery{Query: "hello"}
	if err := q.Validate(25, 100, 1024); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 25 {
		t.Errorf("limit: got %d, want 25", q.Limit)
	}

	// A zero default still yields a usable limit.
	q = &SearchQuery{Query: "hello"}
	if err := q.Validate(0, 100, 1024); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 10 {
		t.Errorf("limit with zero default: got %d, want 10", q.Limit)
	}
}

func TestSearchQuery_Validate_EmptyQuery(t *testing.T) {
	for _, query := range []string{"", "   \t\n"} {
		q := &SearchQuery{Query: query}
		if err := q.Validate(10, 100, 1024); !errors.Is(err, errs.ErrEmptyQuery) {
			t.Errorf("%q: got %v, want ErrEmptyQuery", query, err)
		}
	}
}

func TestSearchQuery_Validate_UnknownMode(t *testing.T) {
	q := &SearchQuery{Query: "x", Mode: "fuzzy"}
	if err := q.Validate(10, 100, 1024); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestSearchQuery_Validate_ClampsLimit(t *testing.T) {
	q := &SearchQuery{Query: "x", Limit: 500}
	if err := q.Validate(10, 100, 1024); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 100 {
		t.Errorf("limit: got %d, want 100", q.Limit)
	}
}

func TestSearchQuery_Validate_TooLong(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	q := &SearchQuery{Query: string(long)}
	if err := q.Validate(10, 100, 1024); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("got %v, want validation error", err)
	}
}
