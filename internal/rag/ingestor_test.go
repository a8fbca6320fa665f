package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/llm"
	"github.com/docsage/docsage/internal/models"
	"github.com/docsage/docsage/internal/vector"
)

// fakeStorage records document and conversation writes in memory.
type fakeStorage struct {
	docs     map[string]*models.Document
	statuses map[string][]string
	convs    []*models.Conversation
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		docs:     make(map[string]*models.Document),
		statuses: make(map[string][]string),
	}
}

func (f *fakeStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.docs[doc.ID] = doc
	f.statuses[doc.ID] = append(f.statuses[doc.ID], doc.Status)
	return nil
}

func (f *fakeStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return f.docs[id], nil
}

func (f *fakeStorage) UpdateDocumentStatus(ctx context.Context, id, status string, chunkCount int) error {
	f.statuses[id] = append(f.statuses[id], status)
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.ChunkCount = chunkCount
	}
	return nil
}

func (f *fakeStorage) DeleteDocument(ctx context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	return nil, nil
}

func (f *fakeStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	f.convs = append(f.convs, conv)
	return nil
}

func (f *fakeStorage) GetConversationsBySession(ctx context.Context, sessionID string) ([]*models.Conversation, error) {
	return nil, nil
}

func (f *fakeStorage) DeleteConversationsBySession(ctx context.Context, sessionID string) error {
	return nil
}

func (f *fakeStorage) CountDocuments(ctx context.Context) (int64, error) {
	return int64(len(f.docs)), nil
}

func (f *fakeStorage) CountConversations(ctx context.Context) (int64, error) {
	return int64(len(f.convs)), nil
}

func (f *fakeStorage) Close() error { return nil }

func TestIngestFileRecordsFailure(t *testing.T) {
	store, err := vector.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fs := newFakeStorage()
	ing, err := NewIngestor(embedding.NewMockEmbedder(16), store, 1000, 200, WithIngestStorage(fs))
	if err != nil {
		t.Fatal(err)
	}

	// Unsupported extension fails during extraction.
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := ing.IngestFile(context.Background(), path, nil)
	if err == nil {
		t.Fatal("expected extraction error")
	}
	if !IsKind(err, KindInput) {
		t.Errorf("expected input error, got %v", err)
	}
	if doc.Status != models.StatusFailed {
		t.Errorf("status = %q, want %q", doc.Status, models.StatusFailed)
	}
	got := fs.statuses[doc.ID]
	if len(got) != 2 || got[0] != models.StatusProcessing || got[1] != models.StatusFailed {
		t.Errorf("status transitions = %v, want [processing failed]", got)
	}
}

func TestIngestFileMissingFile(t *testing.T) {
	store, err := vector.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ing, err := NewIngestor(embedding.NewMockEmbedder(16), store, 1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ing.IngestFile(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAskPersistsConversation(t *testing.T) {
	store, err := vector.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	embedder := embedding.NewMockEmbedder(32)
	ing, err := NewIngestor(embedder, store, 1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	_, collection, err := ing.Ingest(context.Background(), "doc-1", testPages, nil)
	if err != nil {
		t.Fatal(err)
	}

	fs := newFakeStorage()
	gen := &llm.MockGenerator{Answer: "persisted answer"}
	engine, err := NewEngine(embedder, gen, 4, WithStorage(fs))
	if err != nil {
		t.Fatal(err)
	}
	session := NewSession("session-1", "doc-1", collection)

	if _, err := engine.Ask(context.Background(), session, "a question"); err != nil {
		t.Fatal(err)
	}
	if len(fs.convs) != 1 {
		t.Fatalf("expected 1 conversation record, got %d", len(fs.convs))
	}
	conv := fs.convs[0]
	if conv.SessionID != "session-1" || conv.DocumentID != "doc-1" {
		t.Errorf("record = %+v", conv)
	}
	if conv.UserMessage != "a question" || conv.AssistantMessage != "persisted answer" {
		t.Errorf("record messages = %q / %q", conv.UserMessage, conv.AssistantMessage)
	}
}

func TestRemoveDeletesCollection(t *testing.T) {
	store, err := vector.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fs := newFakeStorage()
	ing, err := NewIngestor(embedding.NewMockEmbedder(16), store, 1000, 200, WithIngestStorage(fs))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ing.Ingest(context.Background(), "doc-x", testPages, nil); err != nil {
		t.Fatal(err)
	}
	fs.docs["doc-x"] = &models.Document{ID: "doc-x"}

	if err := ing.Remove(context.Background(), "doc-x"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := fs.docs["doc-x"]; ok {
		t.Error("document record should be deleted")
	}
	c, err := store.Open("doc-x")
	if err != nil {
		t.Fatal(err)
	}
	if c.Size() != 0 {
		t.Errorf("collection should be empty after removal, has %d entries", c.Size())
	}
}
