package llm

import (
	"context"

	"github.com/docsage/docsage/internal/models"
)

// MockGenerator is a canned generator for tests. When Err is set, Generate
// fails; otherwise it returns Answer and records the last call.
type MockGenerator struct {
	Answer string
	Err    error

	LastMessages []models.Message
	LastSystem   string
	Calls        int
}

// Generate returns the canned answer or error.
func (g *MockGenerator) Generate(ctx context.Context, messages []models.Message, systemPrompt string) (string, error) {
	g.Calls++
	g.LastMessages = messages
	g.LastSystem = systemPrompt
	if g.Err != nil {
		return "", g.Err
	}
	return g.Answer, nil
}
