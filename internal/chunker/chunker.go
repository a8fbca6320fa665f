// Package chunker splits document text into overlapping fixed-size chunks
// for retrieval indexing.
package chunker

import (
	"fmt"
	"strings"

	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/models"
)

// separators are tried in priority order: paragraph break, line break, word
// break, and finally character boundaries. Only the empty separator
// guarantees a segment fits, so it is the last resort.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text into chunks of at most chunkSize characters, where
// adjacent chunks share overlap trailing/leading characters.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. chunkSize must be positive and overlap
// must be in [0, chunkSize); anything else is a configuration error.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, chunk size), got overlap %d for size %d", overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split splits text into chunks. Empty text yields an empty slice. Chunk
// indexes start at zero; the page locator is left at zero for callers that
// have no page information.
func (s *Splitter) Split(text string) []models.Chunk {
	return s.appendChunks(nil, text, 0)
}

// SplitPages splits each page and assigns page locators, with chunk indexes
// strictly increasing across the whole document.
func (s *Splitter) SplitPages(pages []extract.Page) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range pages {
		chunks = s.appendChunks(chunks, p.Text, p.Number)
	}
	return chunks
}

// appendChunks splits text and appends the resulting chunks, continuing the
// index sequence from the chunks already present.
func (s *Splitter) appendChunks(chunks []models.Chunk, text string, page int) []models.Chunk {
	if text == "" {
		return chunks
	}
	step := s.chunkSize - s.overlap
	segments := partition(text, separators, step)

	// Each emitted chunk carries the trailing overlap of the text before it,
	// so adjacent chunks share exactly overlap characters and concatenating
	// the chunks with leading overlaps removed reconstructs the input.
	consumed := 0
	for _, seg := range segments {
		chunkText := seg
		if consumed > 0 && s.overlap > 0 {
			start := consumed - s.overlap
			if start < 0 {
				start = 0
			}
			chunkText = text[start:consumed] + seg
		}
		chunks = append(chunks, models.Chunk{
			Text:  chunkText,
			Page:  page,
			Index: len(chunks),
		})
		consumed += len(seg)
	}
	return chunks
}

// partition splits text into consecutive segments of at most maxLen bytes,
// preferring to cut after the highest-priority separator that occurs. A
// segment that no separator can shorten is cut at character boundaries by
// the empty-separator fallback, which always terminates.
func partition(text string, seps []string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		segments := make([]string, 0, (len(text)+maxLen-1)/maxLen)
		for i := 0; i < len(text); i += maxLen {
			end := i + maxLen
			if end > len(text) {
				end = len(text)
			}
			segments = append(segments, text[i:end])
		}
		return segments
	}

	// SplitAfter keeps the separator attached so segments concatenate back
	// to the original text.
	pieces := strings.SplitAfter(text, sep)
	var segments []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if current.Len()+len(piece) > maxLen {
			flush()
		}
		if len(piece) > maxLen {
			segments = append(segments, partition(piece, rest, maxLen)...)
			continue
		}
		current.WriteString(piece)
	}
	flush()
	return segments
}

// pickSeparator returns the first separator that occurs in text, along with
// the lower-priority separators remaining after it.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}
