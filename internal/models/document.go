// Package models defines core data structures for documents, chunks,
// conversations, and answers.
package models

import "time"

// Document status values. A document starts as processing when uploaded and
// moves to completed or failed when the ingestion pipeline finishes.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document represents an uploaded document's metadata record.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	FilePath   string    `json:"file_path" db:"file_path"`
	FileType   string    `json:"file_type" db:"file_type"`
	FileSize   int64     `json:"file_size" db:"file_size"`
	Status     string    `json:"status" db:"status"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// Conversation is one persisted question/answer exchange within a session.
type Conversation struct {
	ID               int64     `json:"id" db:"id"`
	SessionID        string    `json:"session_id" db:"session_id"`
	DocumentID       string    `json:"document_id" db:"document_id"`
	UserMessage      string    `json:"user_message" db:"user_message"`
	AssistantMessage string    `json:"assistant_message" db:"assistant_message"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
