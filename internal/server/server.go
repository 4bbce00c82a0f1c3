// Package server provides the HTTP API for Lattice.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/indexer"
	"github.com/latticenotes/lattice/internal/linker"
	"github.com/latticenotes/lattice/internal/notes"
	"github.com/latticenotes/lattice/internal/search"
	"github.com/latticenotes/lattice/internal/similarity"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
)

// Server is the HTTP server for the Lattice API.
type Server struct {
	notes       *notes.Service
	engine      *search.Engine
	linker      *linker.Linker
	similarity  *similarity.Cache
	indexer     *indexer.Indexer
	storage     storage.Storage
	vectorIndex *vector.Index
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server

	sessionsMu sync.Mutex
	sessions   map[string]*linker.Session
}

// NewServer creates a server with the given dependencies.
func NewServer(
	noteSvc *notes.Service,
	engine *search.Engine,
	lnk *linker.Linker,
	sim *similarity.Cache,
	idx *indexer.Indexer,
	st storage.Storage,
	vectorIndex *vector.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		notes:       noteSvc,
		engine:      engine,
		linker:      lnk,
		similarity:  sim,
		indexer:     idx,
		storage:     st,
		vectorIndex: vectorIndex,
		config:      cfg,
		logger:      logger,
		sessions:    make(map[string]*linker.Session),
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/notes", s.handleCreateNote)
	r.Get("/api/v1/notes", s.handleListNotes)
	r.Get("/api/v1/notes/{id}", s.handleGetNote)
	r.Put("/api/v1/notes/{id}", s.handleUpdateNote)
	r.Delete("/api/v1/notes/{id}", s.handleDeleteNote)

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/links", s.handleLinks)
	r.Get("/api/v1/links/live", s.handleLinksLive)
	r.Post("/api/v1/links/live/{session}", s.handleLinksPropose)
	r.Get("/api/v1/graph", s.handleGraph)
	r.Post("/api/v1/reindex", s.handleReindex)

	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
