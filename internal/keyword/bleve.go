// Package keyword provides a Bleve index over ingested documents for
// filename and full-text search.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// indexedDocument is the shape stored in the index.
type indexedDocument struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Hit is one keyword search result.
type Hit struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// BleveIndex indexes ingested document text for keyword search.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; remove the directory to force a full re-index after a
// mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize without stemming, so queries
	// match the exact words that appear in the document.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("filename", textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexDocument indexes a document's filename and extracted text under id.
func (b *BleveIndex) IndexDocument(id, filename, text string) error {
	return b.index.Index(id, indexedDocument{Filename: filename, Content: text})
}

// DeleteDocument removes a document from the index.
func (b *BleveIndex) DeleteDocument(id string) error {
	return b.index.Delete(id)
}

// Search runs a match query over filename and content and returns up to
// limit hits by decreasing score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"filename"}

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]Hit, len(results.Hits))
	for i, hit := range results.Hits {
		h := Hit{ID: hit.ID, Score: hit.Score}
		if name, ok := hit.Fields["filename"].(string); ok {
			h.Filename = name
		}
		hits[i] = h
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
