package store

import (
	"context"
	"strings"
	"sync"
)

// InMemoryStore is a thread-safe in-memory store implementation.
// State does not survive the process; it backs tests and runs where no
// storage path is configured.
type InMemoryStore struct {
	items sync.Map // map[string][]byte
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() Store {
	return &InMemoryStore{}
}

// Get retrieves the value stored under key.
func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := s.items.Load(key)
	if !ok {
		return nil, false, nil
	}

	data, ok := value.([]byte)
	if !ok {
		return nil, false, nil
	}

	// Copy out so callers cannot mutate stored state.
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, true, nil
}

// Set stores value under key.
func (s *InMemoryStore) Set(_ context.Context, key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.items.Store(key, buf)
	return nil
}

// Delete removes the value stored under key.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// Keys lists all stored keys that begin with prefix.
func (s *InMemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	s.items.Range(func(key, _ any) bool {
		k, ok := key.(string)
		if ok && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
		return true
	})
	return keys, nil
}

// Close releases resources, a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
