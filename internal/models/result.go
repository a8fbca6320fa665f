package models

// Source points at a retrieved chunk that supported an answer: a bounded
// excerpt plus locator metadata, in retrieval rank order.
type Source struct {
	Excerpt  string            `json:"excerpt"`
	Metadata map[string]string `json:"metadata"`
}

// AnswerResult is the outcome of one ask: the generated answer and the
// sources it was grounded on. Returned to the caller, not persisted here.
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
