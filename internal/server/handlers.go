package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsage/docsage/internal/models"
	"github.com/docsage/docsage/internal/rag"
)

const maxUploadBytes = 64 << 20

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" {
		s.respondError(w, http.StatusBadRequest, "only .pdf files are supported")
		return
	}

	if err := os.MkdirAll(s.config.Storage.UploadDir, 0755); err != nil {
		s.logger.Error("upload dir unavailable", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "upload storage unavailable")
		return
	}
	dest := filepath.Join(s.config.Storage.UploadDir, uuid.New().String()+"_"+filepath.Base(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		s.logger.Error("failed to create upload file", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	_ = out.Close()

	doc, err := s.ingestor.Register(r.Context(), dest)
	if err != nil {
		_ = os.Remove(dest)
		s.logger.Error("failed to register document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("document upload accepted",
		zap.String("id", doc.ID),
		zap.String("filename", header.Filename),
	)

	// Ingestion runs in the background; poll GET /documents/{id} for status.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.ingestor.Process(ctx, doc, nil); err != nil {
			s.logger.Error("ingestion failed", zap.String("id", doc.ID), zap.Error(err))
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     doc.ID,
		"status": doc.Status,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storage.GetDocument(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingestor.Remove(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword search not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := queryInt(r, "limit", 10)
	hits, err := s.search.Search(r.Context(), q, limit)
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

type askRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DocumentID != "" {
		doc, err := s.storage.GetDocument(r.Context(), req.DocumentID)
		if err != nil {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		if doc.Status != models.StatusCompleted {
			s.respondError(w, http.StatusConflict, "document is not ready: "+doc.Status)
			return
		}
	}

	sess, err := s.session(r.Context(), sessionID, req.DocumentID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.Ask(r.Context(), sess, req.Question)
	if err != nil {
		s.logger.Error("ask failed",
			zap.String("session", sessionID),
			zap.Error(err),
		)
		s.respondError(w, askStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// askStatus maps pipeline error kinds onto HTTP statuses.
func askStatus(err error) int {
	switch {
	case rag.IsKind(err, rag.KindInput):
		return http.StatusBadRequest
	case rag.IsKind(err, rag.KindService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	convs, err := s.storage.GetConversationsBySession(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("get history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"history": convs})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := s.storage.DeleteConversationsBySession(r.Context(), sessionID); err != nil {
		s.logger.Error("clear history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.dropSession(sessionID)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	convCount, err := s.storage.CountConversations(ctx)
	if err != nil {
		s.logger.Error("status: count conversations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	collections, err := s.vectors.CollectionNames()
	if err != nil {
		s.logger.Error("status: list collections failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"documents":     docCount,
		"conversations": convCount,
		"collections":   len(collections),
		"sessions":      s.sessionStates(),
		"config": map[string]any{
			"chunk_size":       s.config.Ingest.ChunkSize,
			"chunk_overlap":    s.config.Ingest.ChunkOverlap,
			"top_k":            s.config.Retrieval.TopK,
			"embedding_model":  s.config.Embedding.Model,
			"generation_model": s.config.Generation.Model,
		},
	}
	if s.search != nil {
		if n, err := s.search.Count(); err == nil {
			resp["keyword_index_size"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
