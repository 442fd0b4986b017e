package entitlement_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xraph/iap/entitlement"
	"github.com/xraph/iap/store/file"
	"github.com/xraph/iap/store/memory"
)

func openLedger(t *testing.T, s *memory.Store) *entitlement.Ledger {
	t.Helper()
	l, err := entitlement.Open(context.Background(), s)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestGrantNonConsumableIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	l := openLedger(t, s)

	granted, err := l.GrantNonConsumable(ctx, "remove_ads")
	if err != nil || !granted {
		t.Fatalf("first grant: granted=%v err=%v", granted, err)
	}
	if !l.IsOwned("remove_ads") {
		t.Fatal("expected owned after first grant")
	}

	granted, err = l.GrantNonConsumable(ctx, "remove_ads")
	if err != nil || granted {
		t.Fatalf("second grant: granted=%v err=%v", granted, err)
	}
	if !l.IsOwned("remove_ads") {
		t.Fatal("expected owned after second grant")
	}

	if got := l.Owned(); len(got) != 1 || got[0] != "remove_ads" {
		t.Fatalf("Owned() = %v", got)
	}
	if s.Writes() != 1 {
		t.Fatalf("expected exactly one persisted write, got %d", s.Writes())
	}
	if got := s.Snapshot()[entitlement.NonConsumableKey]; got != `["remove_ads"]` {
		t.Fatalf("persisted value = %q", got)
	}
}

func TestConcurrentDuplicateGrant(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	l := openLedger(t, s)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, err := l.GrantNonConsumable(ctx, "premium")
			if err != nil {
				t.Errorf("grant: %v", err)
				return
			}
			if granted {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected one observable grant, got %d", winners)
	}
	if s.Writes() != 1 {
		t.Fatalf("expected one persisted write, got %d", s.Writes())
	}
}

func TestConsumableAccumulation(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, memory.New())

	if _, err := l.AddConsumable(ctx, "coin", 5); err != nil {
		t.Fatal(err)
	}
	n, err := l.AddConsumable(ctx, "coin", 3)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Fatalf("AddConsumable returned %d, want 8", n)
	}

	for _, delta := range []int64{0, -1} {
		if _, err := l.AddConsumable(ctx, "coin", delta); !errors.Is(err, entitlement.ErrInvalidArgument) {
			t.Fatalf("delta %d: expected ErrInvalidArgument, got %v", delta, err)
		}
	}

	bal, err := l.ConsumableBalance(ctx, "coin")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 8 {
		t.Fatalf("balance = %d, want 8", bal)
	}
}

func TestUnknownBalanceIsZero(t *testing.T) {
	l := openLedger(t, memory.New())
	bal, err := l.ConsumableBalance(context.Background(), "gems")
	if err != nil || bal != 0 {
		t.Fatalf("balance=%d err=%v", bal, err)
	}
}

func TestReservedKey(t *testing.T) {
	l := openLedger(t, memory.New())
	_, err := l.AddConsumable(context.Background(), entitlement.NonConsumableKey, 1)
	if !errors.Is(err, entitlement.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestConcurrentConsumables(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, memory.New())

	var wg sync.WaitGroup
	for _, productID := range []string{"coin", "gem"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(productID string) {
				defer wg.Done()
				if _, err := l.AddConsumable(ctx, productID, 2); err != nil {
					t.Errorf("AddConsumable(%s): %v", productID, err)
				}
			}(productID)
		}
	}
	wg.Wait()

	for _, productID := range []string{"coin", "gem"} {
		bal, err := l.ConsumableBalance(ctx, productID)
		if err != nil {
			t.Fatal(err)
		}
		if bal != 100 {
			t.Fatalf("%s balance = %d, want 100", productID, bal)
		}
	}
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	l := openLedger(t, s)

	if _, err := l.AddConsumable(ctx, "coin", 10); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("disk full")
	s.FailWrites(boom)

	if _, err := l.GrantNonConsumable(ctx, "premium"); !errors.Is(err, boom) {
		t.Fatalf("grant: expected injected error, got %v", err)
	}
	if l.IsOwned("premium") {
		t.Fatal("failed grant must not be visible")
	}
	if _, err := l.AddConsumable(ctx, "coin", 5); !errors.Is(err, boom) {
		t.Fatalf("add: expected injected error, got %v", err)
	}

	s.FailWrites(nil)
	bal, _ := l.ConsumableBalance(ctx, "coin")
	if bal != 10 {
		t.Fatalf("balance = %d, want 10", bal)
	}
}

func TestSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	first, err := entitlement.Open(ctx, file.New(path))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.GrantNonConsumable(ctx, "remove_ads"); err != nil {
		t.Fatal(err)
	}
	if _, err := first.AddConsumable(ctx, "coin", 100); err != nil {
		t.Fatal(err)
	}

	second, err := entitlement.Open(ctx, file.New(path))
	if err != nil {
		t.Fatal(err)
	}
	if !second.IsOwned("remove_ads") {
		t.Fatal("grant lost across restart")
	}
	bal, err := second.ConsumableBalance(ctx, "coin")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
}

func TestCorruptValues(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnedSet", func(t *testing.T) {
		s := memory.New()
		_ = s.SetAtomic(ctx, entitlement.NonConsumableKey, "{oops")
		if _, err := entitlement.Open(ctx, s); !errors.Is(err, entitlement.ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("Balance", func(t *testing.T) {
		s := memory.New()
		_ = s.SetAtomic(ctx, "coin", "-4")
		l := openLedger(t, s)
		if _, err := l.ConsumableBalance(ctx, "coin"); !errors.Is(err, entitlement.ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("DuplicatesCollapsed", func(t *testing.T) {
		s := memory.New()
		_ = s.SetAtomic(ctx, entitlement.NonConsumableKey, `["a","a","b"]`)
		l := openLedger(t, s)
		if got := l.Owned(); len(got) != 2 {
			t.Fatalf("Owned() = %v", got)
		}
	})
}
