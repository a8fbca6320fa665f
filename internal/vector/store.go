// Package vector provides a persistent vector index organized as named
// collections of embedded chunks, with brute-force cosine search.
package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store manages named collections rooted at a filesystem directory. The
// directory is created on first use and reused across restarts.
type Store struct {
	rootDir     string
	mu          sync.Mutex
	collections map[string]*Collection
	logger      *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store rooted at rootDir, creating the directory if needed.
func NewStore(rootDir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("create vector store dir: %w", err)
	}
	s := &Store{
		rootDir:     rootDir,
		collections: make(map[string]*Collection),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create initializes a new collection. It fails if the collection already
// exists and is non-empty; an existing collection is never silently
// overwritten.
func (s *Store) Create(name string) (*Collection, error) {
	c, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	if c.Size() > 0 {
		return nil, fmt.Errorf("collection %q already exists with %d entries", name, c.Size())
	}
	return c, nil
}

// Open returns the collection with the given name, loading persisted state
// if present. A collection that has never been written is returned empty; a
// query against it yields no results rather than an error.
func (s *Store) Open(name string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := &Collection{
		name: name,
		path: filepath.Join(s.rootDir, name, indexFileName),
	}
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("load collection %q: %w", name, err)
	}
	s.collections[name] = c
	s.logger.Debug("collection opened", zap.String("name", name), zap.Int("entries", c.Size()))
	return c, nil
}

// DeleteCollection removes a collection's entries and persisted state.
// Deleting an absent collection is a no-op.
func (s *Store) DeleteCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		c.clear()
		delete(s.collections, name)
	}
	if err := os.RemoveAll(filepath.Join(s.rootDir, name)); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	s.logger.Debug("collection deleted", zap.String("name", name))
	return nil
}

// CollectionNames lists the collections with persisted state, in directory order.
func (s *Store) CollectionNames() ([]string, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("read vector store dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
