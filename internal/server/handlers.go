package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/internal/linker"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/storage"
)

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	note, err := s.notes.Create(r.Context(), &input)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, note)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	note, err := s.notes.Update(r.Context(), chi.URLParam(r, "id"), &input)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notes.Delete(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	sort := storage.NoteSort(r.URL.Query().Get("sort"))
	list, err := s.notes.List(r.Context(), offset, limit, sort)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.String("mode", string(query.Mode)))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type linksRequest struct {
	Content   string  `json:"content"`
	ExcludeID string  `json:"exclude_id,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	var req linksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	links, err := s.linker.ComputeLinks(r.Context(), req.Content, req.ExcludeID, req.Threshold, req.Limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"links": links})
}

// handleLinksLive opens a live link session as a server-sent event stream.
// The first event carries the session id; subsequent events carry link
// updates for content submitted through handleLinksPropose. The session
// ends when the client disconnects.
func (s *Server) handleLinksLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	noteID := r.URL.Query().Get("note_id")
	debounce := time.Duration(s.config.Linker.DebounceMS) * time.Millisecond
	session := linker.NewSession(s.linker, noteID, debounce)
	sessionID := uuid.Must(uuid.NewV7()).String()

	s.sessionsMu.Lock()
	s.sessions[sessionID] = session
	s.sessionsMu.Unlock()
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, sessionID)
		s.sessionsMu.Unlock()
		session.Close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	writeSSE(w, "session", map[string]string{"session_id": sessionID})
	flusher.Flush()

	for {
		select {
		case update, ok := <-session.Updates():
			if !ok {
				return
			}
			writeSSE(w, "links", update)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleLinksPropose(w http.ResponseWriter, r *http.Request) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[chi.URLParam(r, "session")]
	s.sessionsMu.Unlock()
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session.Propose(body.Content)
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	threshold := s.similarity.StoreThreshold()
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = v
	}
	graph, err := s.similarity.Graph(r.Context(), r.URL.Query().Get("center"), threshold)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, graph)
}

// handleReindex streams bulk reindex progress as server-sent events and
// finishes with a done event carrying the processed count.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if s.indexer.Reindexing() {
		s.respondError(w, http.StatusConflict, errs.ErrAlreadyRunning.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	processed, err := s.indexer.ReindexAll(r.Context(), func(p models.ReindexProgress) {
		writeSSE(w, "progress", p)
		flusher.Flush()
	})
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyRunning) {
			writeSSE(w, "error", map[string]string{"error": err.Error()})
		} else {
			s.logger.Error("reindex failed", zap.Error(err))
			writeSSE(w, "error", map[string]string{"error": err.Error()})
		}
		flusher.Flush()
		return
	}
	// Edges are refreshed per note during the reindex itself; no full
	// recompute is needed here.
	writeSSE(w, "done", map[string]int{"processed": processed})
	flusher.Flush()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noteCount, err := s.storage.CountNotes(ctx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	embeddingCount, err := s.storage.CountEmbeddings(ctx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	edgeCount, err := s.storage.CountEdges(ctx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	pending := noteCount - embeddingCount
	if pending < 0 {
		pending = 0
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"notes":             noteCount,
		"embeddings":        embeddingCount,
		"similarity_edges":  edgeCount,
		"vector_index_size": s.vectorIndex.Size(),
		"pending_notes":     pending,
		"reindexing":        s.indexer.Reindexing(),
		"config": map[string]interface{}{
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"model_version":        s.config.Embedding.ModelVersion,
			"store_threshold":      s.config.Similarity.StoreThreshold,
			"database_path":        s.config.Storage.DatabasePath,
			"bleve_index_path":     s.config.Storage.BleveIndexPath,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondErr maps the error taxonomy to HTTP status codes.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrEmptyQuery), errors.Is(err, errs.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrContentTooShort):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errs.ErrAlreadyRunning):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrEmbedding):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(payload) + "\n\n"))
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
