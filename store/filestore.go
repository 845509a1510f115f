package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileStoreMode = 0o600

// FileStore is a durable store backed by a single JSON file. The whole
// key space is loaded on open and rewritten on every mutation, which is
// acceptable for the small blobs this store holds (tokens, language
// preference, translation tables).
type FileStore struct {
	mu     sync.RWMutex
	path   string
	items  map[string][]byte
	closed bool
}

// NewFileStore opens or creates the store file at path.
func NewFileStore(path string) (Store, error) {
	s := &FileStore{
		path:  path,
		items: make(map[string][]byte),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not read store file %s: %w", path, err)
		}
		return s, nil
	}

	if len(data) > 0 {
		if err = json.Unmarshal(data, &s.items); err != nil {
			return nil, fmt.Errorf("could not parse store file %s: %w", path, err)
		}
	}

	return s, nil
}

// Get retrieves the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}

	// Copy out so callers cannot mutate stored state.
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, true, nil
}

// Set stores value under key and writes through to disk.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	s.items[key] = buf

	return s.persistLocked()
}

// Delete removes the value stored under key and writes through to disk.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)

	return s.persistLocked()
}

// Keys lists all stored keys that begin with prefix.
func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close flushes state and marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.persistLocked()
}

// persistLocked rewrites the backing file atomically. A temp file in the
// same directory is renamed over the target so readers never observe a
// partially written key space.
func (s *FileStore) persistLocked() error {
	data, err := json.Marshal(s.items)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temp store file: %w", err)
	}

	_, err = tmp.Write(data)
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("could not write temp store file: %w", err)
	}

	if err = os.Chmod(tmp.Name(), fileStoreMode); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("could not replace store file: %w", err)
	}

	return nil
}
