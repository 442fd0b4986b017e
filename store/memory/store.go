// Package memory provides an in-process store.Store for tests and
// ephemeral sessions. Values do not survive the process.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/iap/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store is a map guarded by a read/write mutex.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
	closed bool
	failW  error
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", store.ErrClosed
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
	if s.failW != nil {
		return s.failW
	}
	s.values[key] = value
	s.writes++
	return nil
}

// FailWrites makes every later SetAtomic return err. A nil err restores
// normal behaviour.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failW = err
}

// Writes returns how many successful SetAtomic calls the store has seen.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Snapshot returns a copy of every stored key and value.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
