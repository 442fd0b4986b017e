// Package file provides a store.Store kept in a single JSON document on
// local disk, the Go counterpart of a per-user preference file.
//
// Every SetAtomic rewrites the whole document through renameio: a temporary
// file in the same directory is synced and renamed over the previous
// version, so a crash leaves either the old or the new document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/xraph/iap/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on top of one JSON file.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
	loaded bool
	closed bool
}

// New creates a store persisted at path. The file is read lazily on first
// use (or by Migrate).
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Migrate creates the parent directory and loads the current document.
func (s *Store) Migrate(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("iap/file: create directory: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", store.ErrClosed
	}
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	v, ok := s.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetAtomic(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if err := s.loadLocked(); err != nil {
		return err
	}

	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	next[key] = value

	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.values = make(map[string]string)
	case err != nil:
		return fmt.Errorf("iap/file: read %s: %w", s.path, err)
	default:
		values := make(map[string]string)
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("iap/file: decode %s: %w", s.path, err)
		}
		s.values = values
	}
	s.loaded = true
	return nil
}

func (s *Store) writeLocked(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("iap/file: encode: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("iap/file: replace %s: %w", s.path, err)
	}
	return nil
}
