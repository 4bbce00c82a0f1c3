package models

import "time"

// MatchType records which retrieval paths produced a search result.
type MatchType string

const (
	// MatchLexical marks a keyword-only hit.
	MatchLexical MatchType = "lexical"
	// MatchSemantic marks a vector-only hit.
	MatchSemantic MatchType = "semantic"
	// MatchBoth marks a hit present in both ranked lists.
	MatchBoth MatchType = "both"
)

// SearchResult is a single search hit. Never persisted.
type SearchResult struct {
	NoteID    string    `json:"note_id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Query     string          `json:"query"`
	Mode      SearchMode      `json:"mode"`
	QueryTime int64           `json:"query_time_ms"`
	// Degraded is set when hybrid mode fell back to lexical-only results
	// because the query embedding failed.
	Degraded bool `json:"degraded,omitempty"`
}

// LatentLink is a note surfaced as semantically related to in-progress
// edit content.
type LatentLink struct {
	NoteID     string  `json:"note_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// LinkUpdate is emitted whenever a live link computation completes without
// being superseded by a newer generation.
type LinkUpdate struct {
	NoteID     string        `json:"note_id,omitempty"`
	Generation uint64        `json:"generation"`
	Links      []*LatentLink `json:"links"`
}

// SimilarityEdge is an above-threshold pairwise similarity between two
// notes, stored with NoteA < NoteB.
type SimilarityEdge struct {
	NoteA      string    `json:"source" db:"note_id_a"`
	NoteB      string    `json:"target" db:"note_id_b"`
	Similarity float64   `json:"weight" db:"similarity"`
	UpdatedAt  time.Time `json:"-" db:"updated_at"`
}

// GraphNode is one note in the similarity graph with its single-linkage
// cluster assignment.
type GraphNode struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Cluster int    `json:"cluster"`
}

// GraphData is the similarity graph at a given threshold.
type GraphData struct {
	Nodes []*GraphNode      `json:"nodes"`
	Edges []*SimilarityEdge `json:"edges"`
}

// ReindexProgress reports bulk reindex progress.
type ReindexProgress struct {
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`
	CurrentTitle string `json:"current_title"`
}
