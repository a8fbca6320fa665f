package models

// Chunk is a contiguous slice of document text, the unit of retrieval.
// Page records where in the source document the text came from. Index is
// strictly increasing across a document's chunks.
type Chunk struct {
	Text  string `json:"text"`
	Page  int    `json:"page"`
	Index int    `json:"index"`
}

// EmbeddedChunk pairs a chunk with its embedding vector. All vectors in one
// collection must have the same length.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"-"`
}

// ScoredChunk is a retrieval hit: a chunk and its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult holds the chunks retrieved for one query, ordered by
// decreasing similarity. Produced fresh per query, never persisted.
type RetrievalResult struct {
	Chunks []ScoredChunk `json:"chunks"`
}
