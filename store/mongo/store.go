// Package mongo implements store.Store on MongoDB via grove.
//
// Each key is one document in the iap_kv collection with the key as _id, so
// single-document atomicity covers SetAtomic.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/iap/store"
)

const colKV = "iap_kv"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the secondary index on updated_at. The primary key needs
// no migration.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.mdb.Collection(colKV).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("iap/mongo: migrate %s indexes: %w", colKV, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var m kvModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("iap/mongo: get %q: %w", key, err)
	}
	return m.Value, nil
}

func (s *Store) SetAtomic(ctx context.Context, key, value string) error {
	m := &kvModel{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$set": bson.M{
			"value":      m.Value,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("iap/mongo: set %q: %w", key, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
