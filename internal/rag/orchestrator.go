// Package rag wires extraction, chunking, embedding, retrieval, and
// generation into the question-answering pipeline.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/llm"
	"github.com/docsage/docsage/internal/models"
	"github.com/docsage/docsage/internal/storage"
	"github.com/docsage/docsage/internal/vector"
	"github.com/docsage/docsage/pkg/utils"
)

// Session states, observable while a question is in flight.
const (
	StateIdle       = "idle"
	StateRetrieving = "retrieving"
	StateGenerating = "generating"
)

// answerInstruction grounds the generation on retrieved context. The context
// block is appended below it per question.
const answerInstruction = "You are an assistant answering questions about a document. " +
	"Answer using only the context below. If the context does not contain " +
	"the answer, say that the document does not cover it."

// Engine answers questions over ingested documents. It embeds the question,
// retrieves the nearest chunks from the session's collection, and asks the
// generator with the session history. A failed ask leaves the session
// history untouched.
type Engine struct {
	embedder   embedding.Embedder
	generator  llm.Generator
	storage    storage.Storage
	topK       int
	excerptLen int
	logger     *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithStorage enables conversation persistence. Without it, history lives
// only in session memory.
func WithStorage(s storage.Storage) EngineOption {
	return func(e *Engine) { e.storage = s }
}

// WithExcerptLength bounds the source excerpts attached to answers.
func WithExcerptLength(n int) EngineOption {
	return func(e *Engine) { e.excerptLen = n }
}

// NewEngine creates an engine retrieving topK chunks per question.
func NewEngine(embedder embedding.Embedder, generator llm.Generator, topK int, opts ...EngineOption) (*Engine, error) {
	if topK <= 0 {
		return nil, newError(KindConfig, "configure", fmt.Errorf("top_k must be positive, got %d", topK))
	}
	e := &Engine{
		embedder:   embedder,
		generator:  generator,
		topK:       topK,
		excerptLen: 200,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Ask answers question against the session's document. On success the
// exchange is appended to the session history and persisted; on any failure
// the history is unchanged. A blank question is rejected before any service
// call.
func (e *Engine) Ask(ctx context.Context, session *Session, question string) (*models.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, newError(KindInput, "validate", fmt.Errorf("question must not be blank"))
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	session.setState(StateRetrieving)
	defer session.setState(StateIdle)

	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, newError(KindService, "embed", err)
	}

	result, err := session.collection.Query(queryVec, e.topK)
	if err != nil {
		return nil, newError(KindIndex, "retrieve", err)
	}
	e.logger.Debug("retrieved context",
		zap.String("session", session.ID),
		zap.Int("chunks", len(result.Chunks)),
	)

	session.setState(StateGenerating)

	messages := append(session.memory.Messages(), models.Message{
		Role:    models.RoleUser,
		Content: question,
	})
	answer, err := e.generator.Generate(ctx, messages, buildSystemPrompt(result.Chunks))
	if err != nil {
		return nil, newError(KindService, "generate", err)
	}

	session.memory.AppendExchange(question, answer)

	if e.storage != nil {
		conv := &models.Conversation{
			SessionID:        session.ID,
			DocumentID:       session.DocumentID,
			UserMessage:      question,
			AssistantMessage: answer,
		}
		if err := e.storage.CreateConversation(ctx, conv); err != nil {
			// The answer is already committed to memory; losing the record
			// is not worth failing the ask.
			e.logger.Warn("failed to persist conversation",
				zap.String("session", session.ID),
				zap.Error(err),
			)
		}
	}

	return &models.AnswerResult{
		Answer:  answer,
		Sources: e.buildSources(result.Chunks),
	}, nil
}

// buildSystemPrompt combines the grounding instruction with the retrieved
// chunk texts, in rank order.
func buildSystemPrompt(chunks []models.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(answerInstruction)
	b.WriteString("\n\nContext:\n")
	for _, sc := range chunks {
		b.WriteString("\n")
		b.WriteString(sc.Chunk.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// buildSources converts retrieval hits into bounded source references, in
// rank order.
func (e *Engine) buildSources(chunks []models.ScoredChunk) []models.Source {
	sources := make([]models.Source, len(chunks))
	for i, sc := range chunks {
		sources[i] = models.Source{
			Excerpt: utils.Excerpt(sc.Chunk.Text, e.excerptLen),
			Metadata: map[string]string{
				vector.MetaKeyPage:       fmt.Sprintf("%d", sc.Chunk.Page),
				vector.MetaKeyChunkIndex: fmt.Sprintf("%d", sc.Chunk.Index),
			},
		}
	}
	return sources
}
