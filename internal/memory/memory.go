// Package memory provides the append-only conversation history for one
// session.
package memory

import (
	"strings"
	"sync"

	"github.com/docsage/docsage/internal/models"
)

// Exchange is one (user, assistant) message pair, used to reload history.
type Exchange struct {
	User      string
	Assistant string
}

// Memory is an ordered, append-only log of conversation messages. One
// logical session owns a Memory instance; methods are safe for concurrent
// use, but turn ordering is the caller's responsibility.
type Memory struct {
	mu       sync.RWMutex
	messages []models.Message
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{}
}

// AppendUser appends a user message.
func (m *Memory) AppendUser(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, models.Message{Role: models.RoleUser, Content: text})
}

// AppendAssistant appends an assistant message.
func (m *Memory) AppendAssistant(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, models.Message{Role: models.RoleAssistant, Content: text})
}

// AppendExchange appends a user/assistant pair atomically: concurrent
// readers see both messages or neither.
func (m *Memory) AppendExchange(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages,
		models.Message{Role: models.RoleUser, Content: user},
		models.Message{Role: models.RoleAssistant, Content: assistant},
	)
}

// Messages returns the full history in chronological order.
func (m *Memory) Messages() []models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// AsText renders the history as alternating "User:"/"Assistant:" lines, for
// generation services that take raw text context rather than structured turns.
func (m *Memory) AsText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		switch msg.Role {
		case models.RoleUser:
			lines = append(lines, "User: "+msg.Content)
		case models.RoleAssistant:
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// Clear empties the history. Irreversible.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// LoadFrom clears the history and appends each exchange in order.
func (m *Memory) LoadFrom(exchanges []Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = make([]models.Message, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		m.messages = append(m.messages,
			models.Message{Role: models.RoleUser, Content: ex.User},
			models.Message{Role: models.RoleAssistant, Content: ex.Assistant},
		)
	}
}
