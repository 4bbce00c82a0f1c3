// Package models defines core data structures for notes, queries, and results.
package models

import "time"

// Note is one user note with derived word count and a content version
// that increments on every content-changing mutation. The content version
// is what embedding jobs are tagged with so a stale asynchronous result
// can never overwrite a fresher one.
type Note struct {
	ID             string    `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	Content        string    `json:"content" db:"content"`
	WordCount      int       `json:"word_count" db:"word_count"`
	ContentVersion int64     `json:"content_version" db:"content_version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// NoteInput is the input for creating or updating a note.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NoteListItem is a note summary for listings.
type NoteListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteList is a page of note summaries.
type NoteList struct {
	Notes []*NoteListItem `json:"notes"`
	Total int             `json:"total"`
}

// Embedding is the persisted vector for a note, tagged with the model
// version that produced it and the note content version it was computed from.
type Embedding struct {
	NoteID         string    `json:"note_id" db:"note_id"`
	Vector         []float32 `json:"-" db:"-"`
	ModelVersion   string    `json:"model_version" db:"model_version"`
	ContentVersion int64     `json:"content_version" db:"content_version"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
