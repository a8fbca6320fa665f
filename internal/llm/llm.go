// Package llm provides the generation service client for producing answers.
package llm

import (
	"context"

	"github.com/docsage/docsage/internal/models"
)

// Generator produces a completion from an ordered sequence of messages.
type Generator interface {
	Generate(ctx context.Context, messages []models.Message, systemPrompt string) (string, error)
}
