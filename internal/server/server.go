// Package server provides the HTTP API for docsage.
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

	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/keyword"
	"github.com/docsage/docsage/internal/memory"
	"github.com/docsage/docsage/internal/rag"
	"github.com/docsage/docsage/internal/storage"
	"github.com/docsage/docsage/internal/vector"
)

// Server is the HTTP server for the docsage API.
type Server struct {
	engine   *rag.Engine
	ingestor *rag.Ingestor
	storage  storage.Storage
	vectors  *vector.Store
	search   *keyword.BleveIndex
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server

	sessionsMu sync.Mutex
	sessions   map[string]*rag.Session
}

// NewServer creates a server with the given dependencies. search may be nil
// when keyword search is disabled.
func NewServer(
	engine *rag.Engine,
	ingestor *rag.Ingestor,
	store storage.Storage,
	vectors *vector.Store,
	search *keyword.BleveIndex,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		ingestor: ingestor,
		storage:  store,
		vectors:  vectors,
		search:   search,
		config:   cfg,
		logger:   logger,
		sessions: make(map[string]*rag.Session),
	}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(180 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleUploadDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/search", s.handleSearchDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Post("/api/v1/sessions/{id}/ask", s.handleAsk)
	r.Get("/api/v1/sessions/{id}/history", s.handleGetHistory)
	r.Delete("/api/v1/sessions/{id}/history", s.handleClearHistory)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
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

// session returns the live session with the given ID, creating it over the
// document's collection when absent. History persisted for the session is
// restored on creation.
func (s *Server) session(ctx context.Context, sessionID, documentID string) (*rag.Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	if documentID == "" {
		return nil, fmt.Errorf("document_id is required for a new session")
	}

	collection, err := s.vectors.Open(documentID)
	if err != nil {
		return nil, err
	}
	sess := rag.NewSession(sessionID, documentID, collection)

	convs, err := s.storage.GetConversationsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(convs) > 0 {
		exchanges := make([]memory.Exchange, 0, len(convs))
		for _, c := range convs {
			exchanges = append(exchanges, memory.Exchange{User: c.UserMessage, Assistant: c.AssistantMessage})
		}
		sess.Restore(exchanges)
		s.logger.Debug("session history restored",
			zap.String("session", sessionID),
			zap.Int("exchanges", len(convs)),
		)
	}

	s.sessions[sessionID] = sess
	return sess, nil
}

// sessionStates snapshots each live session's pipeline state, keyed by
// session ID.
func (s *Server) sessionStates() map[string]string {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	states := make(map[string]string, len(s.sessions))
	for id, sess := range s.sessions {
		states[id] = sess.State()
	}
	return states
}

// dropSession removes the live session so the next ask starts fresh.
func (s *Server) dropSession(sessionID string) {
	s.sessionsMu.Lock()
	delete(s.sessions, sessionID)
	s.sessionsMu.Unlock()
}
