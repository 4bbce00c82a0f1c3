package models

import (
	"strings"

	"github.com/latticenotes/lattice/internal/errs"
)

// SearchMode selects which retrieval paths run for a query.
type SearchMode string

const (
	// ModeLexical runs keyword retrieval only.
	ModeLexical SearchMode = "lexical"
	// ModeSemantic runs vector retrieval only.
	ModeSemantic SearchMode = "semantic"
	// ModeHybrid runs both and fuses them; the default.
	ModeHybrid SearchMode = "hybrid"
)

// SearchQuery is a search request.
type SearchQuery struct {
	Query string     `json:"query"`
	Mode  SearchMode `json:"mode,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

// Validate normalizes the query in place: mode defaults to hybrid, a
// non-positive limit takes defaultLimit, and the limit is clamped to
// maxLimit. Returns ErrEmptyQuery for a blank query and a validation error
// for an unknown mode or an over-long query.
func (q *SearchQuery) Validate(defaultLimit, maxLimit, maxQueryLength int) error {
	if strings.TrimSpace(q.Query) == "" {
		return errs.ErrEmptyQuery
	}
	if maxQueryLength > 0 && len(q.Query) > maxQueryLength {
		return errs.Validation("query exceeds %d characters", maxQueryLength)
	}
	switch q.Mode {
	case "":
		q.Mode = ModeHybrid
	case ModeLexical, ModeSemantic, ModeHybrid:
	default:
		return errs.Validation("unknown search mode %q", q.Mode)
	}
	if q.Limit <= 0 {
		if defaultLimit > 0 {
			q.Limit = defaultLimit
		} else {
			q.Limit = 10
		}
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
