// Package storetest holds a conformance suite every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/xraph/iap/store"
)

// Factory returns a fresh, migrated, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("MissingKey", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		_, err := s.Get(context.Background(), "absent")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetThenGet", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		if err := s.SetAtomic(ctx, "coins", "10"); err != nil {
			t.Fatalf("SetAtomic: %v", err)
		}
		got, err := s.Get(ctx, "coins")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "10" {
			t.Fatalf("got %q, want %q", got, "10")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		for _, v := range []string{"[]", `["remove_ads"]`} {
			if err := s.SetAtomic(ctx, "NonConsumablePurchases", v); err != nil {
				t.Fatalf("SetAtomic(%q): %v", v, err)
			}
		}
		got, err := s.Get(ctx, "NonConsumablePurchases")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != `["remove_ads"]` {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		if err := s.SetAtomic(ctx, "blank", ""); err != nil {
			t.Fatalf("SetAtomic: %v", err)
		}
		got, err := s.Get(ctx, "blank")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "" {
			t.Fatalf("got %q, want empty", got)
		}
	})

	t.Run("ConcurrentKeys", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i)
				if err := s.SetAtomic(ctx, key, fmt.Sprint(i)); err != nil {
					t.Errorf("SetAtomic(%s): %v", key, err)
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 16; i++ {
			key := fmt.Sprintf("k%d", i)
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get(%s): %v", key, err)
			}
			if got != fmt.Sprint(i) {
				t.Fatalf("Get(%s) = %q", key, got)
			}
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}
