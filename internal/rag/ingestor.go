package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/models"
	"github.com/docsage/docsage/internal/storage"
	"github.com/docsage/docsage/internal/vector"
)

// ProgressFunc receives stage-completion notices during ingestion.
type ProgressFunc func(stage string)

// SearchIndexer receives document text for keyword search. Implemented by
// the keyword package; nil disables keyword indexing.
type SearchIndexer interface {
	IndexDocument(id, filename, text string) error
	DeleteDocument(id string) error
}

// Ingestor turns document files into queryable collections: extract pages,
// chunk, embed, and index. Document status transitions are recorded in
// storage when one is attached.
type Ingestor struct {
	extractor *extract.Extractor
	splitter  *chunker.Splitter
	embedder  embedding.Embedder
	store     *vector.Store
	storage   storage.Storage
	search    SearchIndexer
	logger    *zap.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestLogger sets a logger for debug output.
func WithIngestLogger(l *zap.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// WithIngestStorage enables document metadata persistence.
func WithIngestStorage(s storage.Storage) IngestorOption {
	return func(i *Ingestor) { i.storage = s }
}

// WithSearchIndexer enables keyword indexing of ingested documents.
func WithSearchIndexer(idx SearchIndexer) IngestorOption {
	return func(i *Ingestor) { i.search = idx }
}

// NewIngestor creates an ingestor chunking with the given size and overlap.
func NewIngestor(embedder embedding.Embedder, store *vector.Store, chunkSize, overlap int, opts ...IngestorOption) (*Ingestor, error) {
	splitter, err := chunker.NewSplitter(chunkSize, overlap)
	if err != nil {
		return nil, newError(KindConfig, "configure", err)
	}
	ing := &Ingestor{
		extractor: extract.NewExtractor(),
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing, nil
}

// Ingest chunks and embeds pages into a fresh collection named after docID.
// Returns the chunk count and the collection. progress may be nil.
func (i *Ingestor) Ingest(ctx context.Context, docID string, pages []extract.Page, progress ProgressFunc) (int, *vector.Collection, error) {
	notify := func(stage string) {
		if progress != nil {
			progress(stage)
		}
	}

	chunks := i.splitter.SplitPages(pages)
	if len(chunks) == 0 {
		return 0, nil, newError(KindInput, "chunk", fmt.Errorf("document has no extractable text"))
	}
	notify("chunking complete")

	texts := make([]string, len(chunks))
	for j, ch := range chunks {
		texts[j] = ch.Text
	}
	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, nil, newError(KindService, "embed", err)
	}
	notify("embedding complete")

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for j, ch := range chunks {
		embedded[j] = models.EmbeddedChunk{Chunk: ch, Vector: vectors[j]}
	}

	collection, err := i.store.Create(docID)
	if err != nil {
		return 0, nil, newError(KindIndex, "index", err)
	}
	if err := collection.Upsert(embedded); err != nil {
		return 0, nil, newError(KindIndex, "index", err)
	}
	notify("indexing complete")

	i.logger.Info("document ingested",
		zap.String("document", docID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), collection, nil
}

// Register creates a processing-state document record for the file at path.
// Processing happens separately so callers can acknowledge an upload before
// the pipeline runs.
func (i *Ingestor) Register(ctx context.Context, path string) (*models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newError(KindInput, "extract", err)
	}

	doc := &models.Document{
		ID:       uuid.New().String(),
		Filename: filepath.Base(path),
		FilePath: path,
		FileType: strings.ToLower(filepath.Ext(path)),
		FileSize: info.Size(),
		Status:   models.StatusProcessing,
	}
	if i.storage != nil {
		if err := i.storage.CreateDocument(ctx, doc); err != nil {
			return nil, newError(KindIndex, "persist", err)
		}
	}
	return doc, nil
}

// Process runs the pipeline for a registered document and records the
// completed or failed status. The document is mutated to its final state.
func (i *Ingestor) Process(ctx context.Context, doc *models.Document, progress ProgressFunc) error {
	pages, err := i.extractor.Extract(doc.FilePath)
	if err != nil {
		i.markFailed(ctx, doc)
		return newError(KindInput, "extract", err)
	}

	count, _, err := i.Ingest(ctx, doc.ID, pages, progress)
	if err != nil {
		i.markFailed(ctx, doc)
		return err
	}

	doc.Status = models.StatusCompleted
	doc.ChunkCount = count
	if i.storage != nil {
		if err := i.storage.UpdateDocumentStatus(ctx, doc.ID, models.StatusCompleted, count); err != nil {
			return newError(KindIndex, "persist", err)
		}
	}

	if i.search != nil {
		if err := i.search.IndexDocument(doc.ID, doc.Filename, pagesText(pages)); err != nil {
			// Keyword search is auxiliary; the document is already queryable.
			i.logger.Warn("keyword indexing failed",
				zap.String("document", doc.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// IngestFile ingests the file at path end to end: a document record is
// created in processing state, and moved to completed or failed when the
// pipeline finishes. The returned document reflects the final state.
func (i *Ingestor) IngestFile(ctx context.Context, path string, progress ProgressFunc) (*models.Document, error) {
	doc, err := i.Register(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := i.Process(ctx, doc, progress); err != nil {
		return doc, err
	}
	return doc, nil
}

// Remove deletes a document's collection and keyword index entry.
func (i *Ingestor) Remove(ctx context.Context, docID string) error {
	if err := i.store.DeleteCollection(docID); err != nil {
		return newError(KindIndex, "delete", err)
	}
	if i.search != nil {
		if err := i.search.DeleteDocument(docID); err != nil {
			i.logger.Warn("keyword index delete failed", zap.String("document", docID), zap.Error(err))
		}
	}
	if i.storage != nil {
		if err := i.storage.DeleteDocument(ctx, docID); err != nil {
			return newError(KindIndex, "delete", err)
		}
	}
	return nil
}

func (i *Ingestor) markFailed(ctx context.Context, doc *models.Document) {
	doc.Status = models.StatusFailed
	if i.storage == nil {
		return
	}
	if err := i.storage.UpdateDocumentStatus(ctx, doc.ID, models.StatusFailed, 0); err != nil {
		i.logger.Warn("failed to record document failure",
			zap.String("document", doc.ID),
			zap.Error(err),
		)
	}
}

func pagesText(pages []extract.Page) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString(p.Text)
		b.WriteString("\n")
	}
	return b.String()
}
