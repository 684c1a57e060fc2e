// Package storage provides in-memory history storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral runs

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/richinex/llmchain/chain"
)

// InMemoryStore implements Store using an in-memory map.
// Data is lost when process terminates.
type InMemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*chain.History
	order []string
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]*chain.History),
	}
}

// Begin registers a run.
func (s *InMemoryStore) Begin(ctx context.Context, h chain.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[h.RunID]; exists {
		return fmt.Errorf("run %s already exists", h.RunID)
	}
	s.runs[h.RunID] = &chain.History{Header: h}
	s.order = append(s.order, h.RunID)
	return nil
}

// Append adds an entry to a run.
func (s *InMemoryStore) Append(ctx context.Context, runID string, e chain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("append to %s: %w", runID, ErrRunNotFound)
	}
	h.Entries = append(h.Entries, e)
	return nil
}

// Finish records the outcome of a run.
func (s *InMemoryStore) Finish(ctx context.Context, runID string, o chain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("finish %s: %w", runID, ErrRunNotFound)
	}
	h.Outcome = &o
	return nil
}

// Load returns a copy of a run's history.
func (s *InMemoryStore) Load(ctx context.Context, runID string) (*chain.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", runID, ErrRunNotFound)
	}

	// Return a copy to avoid external mutations
	copied := &chain.History{Header: h.Header, Entries: make([]chain.Entry, len(h.Entries))}
	copy(copied.Entries, h.Entries)
	if h.Outcome != nil {
		o := *h.Outcome
		copied.Outcome = &o
	}
	return copied, nil
}

// ListRuns lists run ids in the order they began.
func (s *InMemoryStore) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// Verify InMemoryStore implements Store
var _ Store = (*InMemoryStore)(nil)
