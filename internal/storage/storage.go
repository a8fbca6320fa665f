// Package storage defines the persistence interface for document metadata
// and conversation records.
package storage

import (
	"context"

	"github.com/docsage/docsage/internal/models"
)

// Storage persists document metadata and conversation history. The RAG core
// writes status transitions and exchanges here; it only reads back to
// reconstruct a session's memory.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status string, chunkCount int) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationsBySession(ctx context.Context, sessionID string) ([]*models.Conversation, error)
	DeleteConversationsBySession(ctx context.Context, sessionID string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountConversations(ctx context.Context) (int64, error)

	Close() error
}
