package rag

import (
	"sync"

	"github.com/docsage/docsage/internal/memory"
	"github.com/docsage/docsage/internal/vector"
)

// Session binds a conversation to one document's collection. Each session
// owns its memory; turns within a session are serialized, while separate
// sessions proceed independently.
type Session struct {
	ID         string
	DocumentID string

	collection *vector.Collection
	memory     *memory.Memory
	mu         sync.Mutex

	stateMu sync.Mutex
	state   string
}

// NewSession creates a session over the given collection with empty history.
func NewSession(id, documentID string, collection *vector.Collection) *Session {
	return &Session{
		ID:         id,
		DocumentID: documentID,
		collection: collection,
		memory:     memory.New(),
		state:      StateIdle,
	}
}

// State reports what the session is currently doing: idle, retrieving, or
// generating. Sessions track state independently of each other.
func (s *Session) State() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(state string) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// Memory returns the session's conversation history.
func (s *Session) Memory() *memory.Memory {
	return s.memory
}

// Restore replaces the session history with previously persisted exchanges.
func (s *Session) Restore(exchanges []memory.Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory.LoadFrom(exchanges)
}
