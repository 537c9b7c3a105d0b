package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory StreamStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]string)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries[key]), nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = slices.Clone(ids)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
