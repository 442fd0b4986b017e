package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/iap/store"
	"github.com/xraph/iap/store/sqlite"
	"github.com/xraph/iap/store/storetest"
)

// openDB opens a grove database over a SQLite file. One connection keeps
// concurrent writers from tripping over SQLITE_BUSY.
func openDB(t *testing.T, path string) *grove.DB {
	t.Helper()

	drv := sqlitedriver.New()
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	if err := drv.Open(context.Background(), dsn, driver.WithPoolSize(1)); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}
	return db
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := sqlite.New(openDB(t, filepath.Join(t.TempDir(), "iap.db")))
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return s
	})
}

func TestMigrateTwiceAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iap.db")
	ctx := context.Background()

	first := sqlite.New(openDB(t, path))
	for i := 0; i < 2; i++ {
		if err := first.Migrate(ctx); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}
	if err := first.SetAtomic(ctx, "coins", "250"); err != nil {
		t.Fatal(err)
	}
	if err := first.SetAtomic(ctx, "coins", "300"); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := sqlite.New(openDB(t, path))
	defer second.Close()
	if err := second.Migrate(ctx); err != nil {
		t.Fatalf("Migrate after reopen: %v", err)
	}
	got, err := second.Get(ctx, "coins")
	if err != nil {
		t.Fatal(err)
	}
	if got != "300" {
		t.Errorf("Get(coins) = %q, want 300", got)
	}
}
