// Package store defines the durable key-value contract behind the
// entitlement ledger.
//
// Keys are short strings (product ids plus a handful of reserved keys) and
// values are opaque strings. Every backend must make SetAtomic durable
// before it returns and must never expose a partially written value to a
// later Get, including after a crash.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is the storage interface used by the entitlement ledger.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetAtomic replaces the value under key. The write is durable when
	// SetAtomic returns nil; readers observe either the old or the new
	// value, never a mix.
	SetAtomic(ctx context.Context, key, value string) error

	// Migrate prepares the backing schema (tables, indexes, directories).
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
