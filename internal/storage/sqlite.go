package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// DSN parameters apply per pooled connection; a plain PRAGMA exec
	// would only configure whichever connection happened to run it.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		content_version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);

	CREATE TABLE IF NOT EXISTS embeddings (
		note_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		model_version TEXT NOT NULL,
		content_version INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS similarity_edges (
		note_id_a TEXT NOT NULL,
		note_id_b TEXT NOT NULL,
		similarity REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (note_id_a, note_id_b)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_b ON similarity_edges(note_id_b);
	CREATE INDEX IF NOT EXISTS idx_edges_similarity ON similarity_edges(similarity);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateNote inserts a note with content version 1.
func (s *SQLiteStorage) CreateNote(ctx context.Context, note *models.Note) error {
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	note.ContentVersion = 1

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, title, content, word_count, content_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.Title, note.Content, note.WordCount, note.ContentVersion, note.CreatedAt, note.UpdatedAt,
	)
	return err
}

// GetNote returns a note by ID.
func (s *SQLiteStorage) GetNote(ctx context.Context, id string) (*models.Note, error) {
	var note models.Note
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, word_count, content_version, created_at, updated_at
		 FROM notes WHERE id = ?`, id,
	).Scan(&note.ID, &note.Title, &note.Content, &note.WordCount, &note.ContentVersion, &note.CreatedAt, &note.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, errs.NotFound("note", id)
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateNote updates an existing note, bumping its content version and
// updated_at. The incremented version is written back to note.
func (s *SQLiteStorage) UpdateNote(ctx context.Context, note *models.Note) error {
	note.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, word_count = ?,
		 content_version = content_version + 1, updated_at = ?
		 WHERE id = ?`,
		note.Title, note.Content, note.WordCount, note.UpdatedAt, note.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errs.NotFound("note", note.ID)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT content_version FROM notes WHERE id = ?`, note.ID,
	).Scan(&note.ContentVersion)
	return err
}

// DeleteNote removes a note and its derived embedding and edges in one transaction.
func (s *SQLiteStorage) DeleteNote(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errs.NotFound("note", id)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM similarity_edges WHERE note_id_a = ? OR note_id_b = ?`, id, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListNotes returns notes ordered by sort with offset and limit.
func (s *SQLiteStorage) ListNotes(ctx context.Context, offset, limit int, sort NoteSort) ([]*models.Note, error) {
	var order string
	switch sort {
	case SortCreated:
		order = "created_at DESC"
	case SortTitle:
		order = "title ASC"
	default:
		order = "updated_at DESC"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, word_count, content_version, created_at, updated_at
		 FROM notes ORDER BY `+order+` LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		var note models.Note
		if err := rows.Scan(&note.ID, &note.Title, &note.Content, &note.WordCount,
			&note.ContentVersion, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

// CountNotes returns the total number of notes.
func (s *SQLiteStorage) CountNotes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count)
	return count, err
}

// PutEmbeddingIfCurrent writes the embedding only if the note's content
// version still equals emb.ContentVersion. Check and write happen in one
// transaction so a slow stale job can never clobber a fresher embedding.
func (s *SQLiteStorage) PutEmbeddingIfCurrent(ctx context.Context, emb *models.Embedding) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT content_version FROM notes WHERE id = ?`, emb.NoteID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		// Note deleted while the job was in flight; nothing to write.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current != emb.ContentVersion {
		return false, nil
	}

	emb.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (note_id, vector, model_version, content_version, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		emb.NoteID, VectorToBlob(emb.Vector), emb.ModelVersion, emb.ContentVersion, emb.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// GetEmbedding returns the embedding for a note.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, noteID string) (*models.Embedding, error) {
	var emb models.Embedding
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT note_id, vector, model_version, content_version, updated_at
		 FROM embeddings WHERE note_id = ?`, noteID,
	).Scan(&emb.NoteID, &blob, &emb.ModelVersion, &emb.ContentVersion, &emb.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, errs.NotFound("embedding", noteID)
	}
	if err != nil {
		return nil, err
	}
	emb.Vector = BlobToVector(blob)
	return &emb, nil
}

// ListEmbeddings returns all embeddings.
func (s *SQLiteStorage) ListEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id, vector, model_version, content_version, updated_at FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embs []*models.Embedding
	for rows.Next() {
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(&emb.NoteID, &blob, &emb.ModelVersion, &emb.ContentVersion, &emb.UpdatedAt); err != nil {
			return nil, err
		}
		emb.Vector = BlobToVector(blob)
		embs = append(embs, &emb)
	}
	return embs, rows.Err()
}

// DeleteEmbedding removes the embedding for a note.
func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE note_id = ?`, noteID)
	return err
}

// CountEmbeddings returns the total number of embeddings.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// ReplaceEdgesForNote deletes all edges touching noteID and inserts the
// given edges in one transaction.
func (s *SQLiteStorage) ReplaceEdgesForNote(ctx context.Context, noteID string, edges []*models.SimilarityEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM similarity_edges WHERE note_id_a = ? OR note_id_b = ?`, noteID, noteID); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, edges); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceAllEdges replaces the entire edge set in one transaction.
func (s *SQLiteStorage) ReplaceAllEdges(ctx context.Context, edges []*models.SimilarityEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM similarity_edges`); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, edges); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEdges(ctx context.Context, tx *sql.Tx, edges []*models.SimilarityEdge) error {
	if len(edges) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO similarity_edges (note_id_a, note_id_b, similarity, updated_at)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range edges {
		e.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, e.NoteA, e.NoteB, e.Similarity, e.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

// ListEdges returns edges with similarity >= minSimilarity, ordered by the
// canonical pair for deterministic output.
func (s *SQLiteStorage) ListEdges(ctx context.Context, minSimilarity float64) ([]*models.SimilarityEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id_a, note_id_b, similarity, updated_at
		 FROM similarity_edges WHERE similarity >= ?
		 ORDER BY note_id_a, note_id_b`,
		minSimilarity,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*models.SimilarityEdge
	for rows.Next() {
		var e models.SimilarityEdge
		if err := rows.Scan(&e.NoteA, &e.NoteB, &e.Similarity, &e.UpdatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// DeleteEdgesForNote removes all edges touching noteID.
func (s *SQLiteStorage) DeleteEdgesForNote(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM similarity_edges WHERE note_id_a = ? OR note_id_b = ?`, noteID, noteID)
	return err
}

// CountEdges returns the total number of stored edges.
func (s *SQLiteStorage) CountEdges(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM similarity_edges`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
