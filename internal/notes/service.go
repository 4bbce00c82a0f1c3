// Package notes implements note CRUD on top of storage, keeping the
// search indices in sync through the indexer.
package notes

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/indexer"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/pkg/utils"
)

const (
	maxTitleLength   = 500
	maxContentLength = 2 * 1024 * 1024
)

// Service provides validated note operations.
type Service struct {
	storage storage.Storage
	indexer *indexer.Indexer
	logger  *zap.Logger
}

// NewService creates a note service.
func NewService(st storage.Storage, idx *indexer.Indexer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: st, indexer: idx, logger: logger}
}

// Create validates the input, persists a new note, and indexes it.
func (s *Service) Create(ctx context.Context, input *models.NoteInput) (*models.Note, error) {
	title, err := validateInput(input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := &models.Note{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Title:          title,
		Content:        input.Content,
		WordCount:      utils.WordCount(input.Content),
		ContentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.storage.CreateNote(ctx, note); err != nil {
		return nil, err
	}
	if err := s.indexer.OnUpsert(ctx, note); err != nil {
		return nil, err
	}
	s.logger.Info("note created", zap.String("id", note.ID), zap.String("title", note.Title))
	return note, nil
}

// Get returns one note by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	return s.storage.GetNote(ctx, id)
}

// Update replaces a note's title and content, bumping its content version,
// and re-indexes it.
func (s *Service) Update(ctx context.Context, id string, input *models.NoteInput) (*models.Note, error) {
	title, err := validateInput(input)
	if err != nil {
		return nil, err
	}

	note, err := s.storage.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	note.Title = title
	note.Content = input.Content
	note.WordCount = utils.WordCount(input.Content)
	note.UpdatedAt = time.Now().UTC()
	if err := s.storage.UpdateNote(ctx, note); err != nil {
		return nil, err
	}
	if err := s.indexer.OnUpsert(ctx, note); err != nil {
		return nil, err
	}
	s.logger.Info("note updated",
		zap.String("id", note.ID), zap.Int64("content_version", note.ContentVersion))
	return note, nil
}

// Delete removes a note and all its derived state.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteNote(ctx, id); err != nil {
		return err
	}
	if err := s.indexer.OnDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("note deleted", zap.String("id", id))
	return nil
}

// List returns a page of note summaries plus the total count.
func (s *Service) List(ctx context.Context, offset, limit int, sort storage.NoteSort) (*models.NoteList, error) {
	if offset < 0 {
		return nil, errs.Validation("offset must be non-negative, got %d", offset)
	}
	if limit <= 0 {
		return nil, errs.Validation("limit must be positive, got %d", limit)
	}
	switch sort {
	case storage.SortUpdated, storage.SortCreated, storage.SortTitle:
	case "":
		sort = storage.SortUpdated
	default:
		return nil, errs.Validation("unknown sort %q", sort)
	}

	total, err := s.storage.CountNotes(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := s.storage.ListNotes(ctx, offset, limit, sort)
	if err != nil {
		return nil, err
	}

	items := make([]*models.NoteListItem, 0, len(notes))
	for _, n := range notes {
		items = append(items, &models.NoteListItem{
			ID:        n.ID,
			Title:     n.Title,
			Snippet:   utils.Snippet(n.Content),
			UpdatedAt: n.UpdatedAt,
		})
	}
	return &models.NoteList{Notes: items, Total: int(total)}, nil
}

// validateInput checks title and content limits and returns the trimmed title.
func validateInput(input *models.NoteInput) (string, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", errs.Validation("title cannot be empty")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", errs.Validation("title exceeds %d characters", maxTitleLength)
	}
	if len(input.Content) > maxContentLength {
		return "", errs.Validation("content exceeds %d bytes", maxContentLength)
	}
	return title, nil
}
