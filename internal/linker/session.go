package linker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/models"
)

// computeTimeout bounds one debounced link computation.
const computeTimeout = 10 * time.Second

// Session turns a stream of draft revisions into a stream of link updates.
//
// Each Propose resets a debounce timer and advances the generation counter;
// only the latest revision is ever computed, and a computation finishing
// after a newer Propose is discarded rather than emitted. Updates carry the
// generation so consumers can drop reordered deliveries too.
type Session struct {
	linker   *Linker
	noteID   string
	debounce time.Duration
	logger   *zap.Logger

	generation atomic.Uint64

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	updates chan *models.LinkUpdate
}

// NewSession creates a link session for one note draft. noteID may be empty
// for an unsaved draft; it is excluded from its own results.
func NewSession(l *Linker, noteID string, debounce time.Duration) *Session {
	return &Session{
		linker:   l,
		noteID:   noteID,
		debounce: debounce,
		logger:   l.logger,
		updates:  make(chan *models.LinkUpdate, 8),
	}
}

// Updates returns the channel link updates are delivered on. It is closed
// by Close.
func (s *Session) Updates() <-chan *models.LinkUpdate {
	return s.updates
}

// Propose submits the current draft content. Computation starts only after
// the debounce interval passes without another Propose.
func (s *Session) Propose(content string) {
	gen := s.generation.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.compute(gen, content)
	})
}

// Close stops any pending computation and closes the update channel.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	// Advance past every issued generation so an in-flight compute is
	// discarded at its final check.
	s.generation.Add(1)
	close(s.updates)
}

func (s *Session) compute(gen uint64, content string) {
	if s.generation.Load() != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), computeTimeout)
	defer cancel()

	links, err := s.linker.ComputeLinks(ctx, content, s.noteID, 0, 0)
	if err != nil {
		if errors.Is(err, errs.ErrContentTooShort) {
			// Content shrank below the minimum: clear the link set.
			links = []*models.LatentLink{}
		} else {
			s.logger.Warn("link computation failed", zap.Error(err))
			return
		}
	}
	if s.generation.Load() != gen {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	update := &models.LinkUpdate{NoteID: s.noteID, Generation: gen, Links: links}
	select {
	case s.updates <- update:
	default:
		s.logger.Debug("link update dropped, consumer lagging")
	}
}
