package search

import "github.com/latticenotes/lattice/internal/models"

// RRFK is the rank-fusion constant: fused score contributions are
// 1/(RRFK + rank) with 1-based ranks.
const RRFK = 60

// Fused holds a note id with its fused score and provenance.
type Fused struct {
	NoteID    string
	Score     float64
	MatchType models.MatchType
}

// FuseRRF merges two ranked id lists by reciprocal rank fusion. A note
// appearing in both lists sums both contributions and is tagged
// MatchBoth; notes in one list are tagged with that list's provenance.
// The result is unordered; callers sort with their own tie-breaking.
func FuseRRF(lexical, semantic []string, k int) map[string]*Fused {
	fused := make(map[string]*Fused, len(lexical)+len(semantic))
	for rank, id := range lexical {
		fused[id] = &Fused{
			NoteID:    id,
			Score:     1.0 / float64(k+rank+1),
			MatchType: models.MatchLexical,
		}
	}
	for rank, id := range semantic {
		score := 1.0 / float64(k+rank+1)
		if f, ok := fused[id]; ok {
			f.Score += score
			f.MatchType = models.MatchBoth
		} else {
			fused[id] = &Fused{
				NoteID:    id,
				Score:     score,
				MatchType: models.MatchSemantic,
			}
		}
	}
	return fused
}
