// Package redis implements store.Store on a Redis server.
//
// Keys are namespaced with a configurable prefix so several applications
// can share one database. A Redis SET replaces the whole value in one
// command, which is the atomicity SetAtomic needs.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"github.com/xraph/iap/store"
)

// DefaultPrefix is prepended to every key unless overridden.
const DefaultPrefix = "iap:"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements store.Store using go-redis.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// New wraps an existing client.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open parses a redis:// URL and connects to it.
func Open(url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("iap/redis: parse url: %w", err)
	}
	return New(goredis.NewClient(o), opts...), nil
}

// Client returns the underlying client for direct access.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate is a no-op; Redis is schemaless.
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("iap/redis: get %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) SetAtomic(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("iap/redis: set %q: %w", key, err)
	}
	return nil
}

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
