// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/docsage/docsage/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER,
		status TEXT NOT NULL DEFAULT 'processing',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		document_id TEXT,
		user_message TEXT NOT NULL,
		assistant_message TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document record.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.StatusProcessing
	}
	doc.UploadedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, file_path, file_type, file_size, status, chunk_count, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FilePath, doc.FileType, doc.FileSize, doc.Status, doc.ChunkCount, doc.UploadedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, file_path, file_type, file_size, status, chunk_count, uploaded_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileType, &doc.FileSize, &doc.Status, &doc.ChunkCount, &doc.UploadedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDocumentStatus records a status transition and the resulting chunk count.
func (s *SQLiteStorage) UpdateDocumentStatus(ctx context.Context, id, status string, chunkCount int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ? WHERE id = ?`,
		status, chunkCount, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// DeleteDocument removes a document and its conversation records.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE document_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, file_path, file_type, file_size, status, chunk_count, uploaded_at
		 FROM documents ORDER BY uploaded_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileType, &doc.FileSize, &doc.Status, &doc.ChunkCount, &doc.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CreateConversation inserts one question/answer exchange.
func (s *SQLiteStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	conv.CreatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, document_id, user_message, assistant_message, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.SessionID, conv.DocumentID, conv.UserMessage, conv.AssistantMessage, conv.CreatedAt,
	)
	if err != nil {
		return err
	}
	conv.ID, _ = result.LastInsertId()
	return nil
}

// GetConversationsBySession returns a session's exchanges in chronological order.
func (s *SQLiteStorage) GetConversationsBySession(ctx context.Context, sessionID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, document_id, user_message, assistant_message, created_at
		 FROM conversations WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.SessionID, &conv.DocumentID, &conv.UserMessage, &conv.AssistantMessage, &conv.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// DeleteConversationsBySession removes all exchanges for a session.
func (s *SQLiteStorage) DeleteConversationsBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID)
	return err
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountConversations returns the total number of conversation records.
func (s *SQLiteStorage) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
