package vector

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/docsage/docsage/internal/models"
)

// Metadata keys attached to every entry.
const (
	MetaKeyPage       = "page"
	MetaKeyChunkIndex = "chunk_index"
)

// Entry is one persisted (id, vector, text, metadata) record. Entries are
// created on ingestion and never mutated; duplicate IDs replace prior entries.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Collection is a named set of entries supporting upsert and nearest-neighbor
// query. All vectors in a collection share one dimensionality. Safe for
// concurrent readers with a writer: readers see pre- or post-upsert state.
type Collection struct {
	name       string
	path       string
	dimensions int
	mu         sync.RWMutex
	entries    []Entry
	byID       map[string]int
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Size returns the number of entries.
func (c *Collection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dimensions returns the vector dimensionality, or 0 while empty.
func (c *Collection) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimensions
}

// Upsert appends embedded chunks to the collection and persists the result.
// A chunk whose ID already exists replaces the prior entry in place. Mixing
// vector dimensionalities is rejected, and the whole batch is validated
// before anything is stored: a failed upsert leaves the collection unchanged.
func (c *Collection) Upsert(chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dims := c.dimensions
	for _, ch := range chunks {
		if dims == 0 {
			dims = len(ch.Vector)
		}
		if len(ch.Vector) != dims {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(ch.Vector), dims)
		}
	}
	c.dimensions = dims

	for _, ch := range chunks {
		entry := entryFromChunk(ch)
		if i, ok := c.byID[entry.ID]; ok {
			c.entries[i] = entry
			continue
		}
		if c.byID == nil {
			c.byID = make(map[string]int)
		}
		c.byID[entry.ID] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c.save()
}

// Query returns the k entries closest to the query vector under cosine
// similarity, ordered by decreasing similarity with ties broken by insertion
// order. Fewer than k entries returns all of them; an empty collection
// returns an empty result, never an error.
func (c *Collection) Query(query []float32, k int) (*models.RetrievalResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := &models.RetrievalResult{}
	if k <= 0 || len(c.entries) == 0 {
		return result, nil
	}
	if len(query) != c.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.dimensions)
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(c.entries))
	for i := range c.entries {
		scores[i] = scored{pos: i, score: CosineSimilarity(query, c.entries[i].Vector)}
	}
	// Stable sort keeps insertion order for equal scores (earlier wins).
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	result.Chunks = make([]models.ScoredChunk, k)
	for i := 0; i < k; i++ {
		e := c.entries[scores[i].pos]
		result.Chunks[i] = models.ScoredChunk{
			Chunk: chunkFromEntry(e),
			Score: scores[i].score,
		}
	}
	return result, nil
}

// Entries returns a copy of the entries in insertion order.
func (c *Collection) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Collection) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.byID = nil
	c.dimensions = 0
}

func entryFromChunk(ch models.EmbeddedChunk) Entry {
	vec := make([]float32, len(ch.Vector))
	copy(vec, ch.Vector)
	return Entry{
		ID:     "chunk_" + strconv.Itoa(ch.Index),
		Vector: vec,
		Text:   ch.Text,
		Metadata: map[string]string{
			MetaKeyPage:       strconv.Itoa(ch.Page),
			MetaKeyChunkIndex: strconv.Itoa(ch.Index),
		},
	}
}

func chunkFromEntry(e Entry) models.Chunk {
	page, _ := strconv.Atoi(e.Metadata[MetaKeyPage])
	index, _ := strconv.Atoi(e.Metadata[MetaKeyChunkIndex])
	return models.Chunk{Text: e.Text, Page: page, Index: index}
}
