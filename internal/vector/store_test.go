package vector

import (
	"sync"
	"testing"

	"github.com/docsage/docsage/internal/models"
)

func embedded(index, page int, text string, vec []float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Chunk:  models.Chunk{Text: text, Page: page, Index: index},
		Vector: vec,
	}
}

func TestCreateFailsOnNonEmptyCollection(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Create("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert([]models.EmbeddedChunk{embedded(0, 1, "a", []float32{1, 0})}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("doc1"); err == nil {
		t.Error("creating an existing non-empty collection should fail")
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, _ := s.Create("doc1")
	if err := c.Upsert([]models.EmbeddedChunk{embedded(0, 1, "a", []float32{1, 0, 0})}); err != nil {
		t.Fatal(err)
	}
	err := c.Upsert([]models.EmbeddedChunk{embedded(1, 1, "b", []float32{1, 0})})
	if err == nil {
		t.Error("mixing dimensionalities should fail at upsert")
	}
}

func TestFailedUpsertLeavesCollectionUnchanged(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)
	c, _ := s.Create("doc1")

	// Second entry has a mismatched dimension, so the whole batch must be
	// rejected without the first entry becoming visible.
	err := c.Upsert([]models.EmbeddedChunk{
		embedded(0, 1, "a", []float32{1, 0, 0}),
		embedded(1, 1, "b", []float32{1, 0}),
	})
	if err == nil {
		t.Fatal("mixed-dimension batch should fail")
	}
	if c.Size() != 0 {
		t.Fatalf("failed upsert left %d entries visible, want 0", c.Size())
	}
	if c.Dimensions() != 0 {
		t.Errorf("failed upsert set dimensions to %d, want 0", c.Dimensions())
	}

	// A later valid batch with a different dimensionality must still work.
	if err := c.Upsert([]models.EmbeddedChunk{embedded(0, 1, "a", []float32{1, 0})}); err != nil {
		t.Fatalf("valid upsert after failed batch: %v", err)
	}
	if c.Size() != 1 {
		t.Errorf("size=%d after valid upsert, want 1", c.Size())
	}

	// Nothing from the failed batch may have been persisted.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := s2.Open("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if c2.Size() != 1 {
		t.Errorf("persisted size=%d, want 1", c2.Size())
	}
}

func TestUpsertReplacesDuplicateIDs(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, _ := s.Create("doc1")
	_ = c.Upsert([]models.EmbeddedChunk{embedded(0, 1, "old", []float32{1, 0})})
	_ = c.Upsert([]models.EmbeddedChunk{embedded(0, 1, "new", []float32{1, 0})})
	if c.Size() != 1 {
		t.Fatalf("expected 1 entry after duplicate upsert, got %d", c.Size())
	}
	if got := c.Entries()[0].Text; got != "new" {
		t.Errorf("entry text=%q, want replacement", got)
	}
}

func TestQueryOrderingAndBounds(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, _ := s.Create("doc1")
	err := c.Upsert([]models.EmbeddedChunk{
		embedded(0, 1, "orthogonal", []float32{0, 1}),
		embedded(1, 1, "exact", []float32{1, 0}),
		embedded(2, 2, "diagonal", []float32{1, 1}),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Query([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Chunks))
	}
	if res.Chunks[0].Chunk.Text != "exact" {
		t.Errorf("rank 1 = %q, want exact match first", res.Chunks[0].Chunk.Text)
	}
	if res.Chunks[0].Score < res.Chunks[1].Score {
		t.Error("results must be ordered by decreasing similarity")
	}

	// k larger than collection returns everything, no error
	res, err = c.Query([]float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 3 {
		t.Errorf("expected all 3 entries for large k, got %d", len(res.Chunks))
	}
}

func TestQueryTiesBreakByInsertionOrder(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, _ := s.Create("doc1")
	_ = c.Upsert([]models.EmbeddedChunk{
		embedded(0, 1, "first", []float32{1, 0}),
		embedded(1, 1, "second", []float32{1, 0}),
	})
	res, err := c.Query([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks[0].Chunk.Text != "first" || res.Chunks[1].Chunk.Text != "second" {
		t.Errorf("equal scores must keep insertion order, got %q then %q",
			res.Chunks[0].Chunk.Text, res.Chunks[1].Chunk.Text)
	}
}

func TestQueryDeterministic(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, _ := s.Create("doc1")
	_ = c.Upsert([]models.EmbeddedChunk{
		embedded(0, 1, "a", []float32{0.9, 0.1}),
		embedded(1, 1, "b", []float32{0.5, 0.5}),
		embedded(2, 2, "c", []float32{0.1, 0.9}),
	})
	q := []float32{0.7, 0.3}
	first, err := c.Query(q, 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Query(q, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Chunks {
		if first.Chunks[i].Chunk.Text != second.Chunks[i].Chunk.Text {
			t.Fatal("repeated query must return identical ordering")
		}
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, err := s.Open("never-written")
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Query([]float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("querying a missing collection must not fail: %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Errorf("expected empty result, got %d chunks", len(res.Chunks))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)
	c, _ := s.Create("doc1")
	err := c.Upsert([]models.EmbeddedChunk{
		embedded(0, 3, "persisted text", []float32{0.6, 0.8}),
		embedded(1, 4, "more text", []float32{0.8, 0.6}),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Fresh store simulates a process restart.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := s2.Open("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if c2.Size() != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", c2.Size())
	}
	if c2.Dimensions() != 2 {
		t.Errorf("dimensions=%d after reopen", c2.Dimensions())
	}
	res, err := c2.Query([]float32{0.6, 0.8}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks[0].Chunk.Text != "persisted text" {
		t.Errorf("got %q", res.Chunks[0].Chunk.Text)
	}
	if res.Chunks[0].Chunk.Page != 3 {
		t.Errorf("page locator lost: %d", res.Chunks[0].Chunk.Page)
	}
}

func TestDeleteCollectionIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)
	c, _ := s.Create("doc1")
	_ = c.Upsert([]models.EmbeddedChunk{embedded(0, 1, "a", []float32{1})})

	if err := s.DeleteCollection("doc1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCollection("doc1"); err != nil {
		t.Errorf("deleting an absent collection should be a no-op: %v", err)
	}
	c2, _ := s.Open("doc1")
	if c2.Size() != 0 {
		t.Errorf("collection should be empty after delete, has %d", c2.Size())
	}
}

func TestConcurrentQueries(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	c, _ := s.Create("doc1")
	_ = c.Upsert([]models.EmbeddedChunk{
		embedded(0, 1, "a", []float32{1, 0}),
		embedded(1, 1, "b", []float32{0, 1}),
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Query([]float32{1, 0}, 2)
			if err != nil || len(res.Chunks) != 2 {
				t.Errorf("concurrent query failed: %v", err)
			}
		}()
	}
	wg.Wait()
}
