package fake_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/adapter/fake"
	"github.com/xraph/iap/id"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []adapter.Outcome
	dropped  []error
	got      chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 16)} }

func (r *recorder) OnOutcome(o adapter.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) OnDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, err)
}

func (r *recorder) last() adapter.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[len(r.outcomes)-1]
}

func TestInitiateRequiresConnect(t *testing.T) {
	a := fake.New()
	err := a.Initiate(context.Background(), adapter.Request{ProductID: "coin", AttemptID: 1})
	if !errors.Is(err, adapter.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestScriptedResolution(t *testing.T) {
	ctx := context.Background()
	a := fake.New()
	rec := newRecorder()

	if err := a.Connect(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := a.Initiate(ctx, adapter.Request{ProductID: "coin", AttemptID: 7}); err != nil {
		t.Fatal(err)
	}

	txn, err := a.Succeed("coin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := id.ParseTransactionID(txn); err != nil {
		t.Fatalf("transaction id %q: %v", txn, err)
	}

	o := rec.last()
	if o.Status != adapter.StatusSucceeded || o.AttemptID != 7 || o.TransactionID != txn {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if _, ok := a.Pending("coin"); ok {
		t.Fatal("request should no longer be pending")
	}
	if _, err := a.Fail("coin", "late"); err == nil {
		t.Fatal("expected error resolving with nothing pending")
	}
}

func TestDeferKeepsPending(t *testing.T) {
	ctx := context.Background()
	a := fake.New()
	rec := newRecorder()
	_ = a.Connect(ctx, rec)
	_ = a.Initiate(ctx, adapter.Request{ProductID: "premium", AttemptID: 1})

	if err := a.Defer("premium"); err != nil {
		t.Fatal(err)
	}
	if o := rec.last(); o.Status != adapter.StatusDeferred || o.Terminal() {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if _, ok := a.Pending("premium"); !ok {
		t.Fatal("deferred request should stay pending")
	}
}

func TestAutoResolve(t *testing.T) {
	ctx := context.Background()
	a := fake.New(fake.WithAutoResolve(adapter.StatusSucceeded, time.Millisecond))
	rec := newRecorder()
	_ = a.Connect(ctx, rec)
	_ = a.Initiate(ctx, adapter.Request{ProductID: "coin", AttemptID: 3})

	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("auto resolution never arrived")
	}
	if o := rec.last(); o.AttemptID != 3 || o.Status != adapter.StatusSucceeded {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestFetchCatalogFilters(t *testing.T) {
	ctx := context.Background()
	a := fake.New(fake.WithProducts(adapter.FetchedProduct{ID: "coin", Title: "Coins"}))
	_ = a.Connect(ctx, newRecorder())

	got, err := a.FetchCatalog(ctx, []string{"coin", "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "coin" {
		t.Fatalf("FetchCatalog = %+v", got)
	}
	if f := a.Fetched(); len(f) != 1 || len(f[0]) != 2 {
		t.Fatalf("Fetched = %v", f)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	a := fake.New(fake.WithRestore(adapter.Transaction{ID: "t1", ProductID: "premium"}))
	txns, err := a.RestoreTransactions(ctx)
	if err != nil || len(txns) != 1 {
		t.Fatalf("txns=%v err=%v", txns, err)
	}

	b := fake.New(fake.WithoutRestore())
	if _, err := b.RestoreTransactions(ctx); !errors.Is(err, adapter.ErrRestoreUnsupported) {
		t.Fatalf("expected ErrRestoreUnsupported, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	a := fake.New()
	rec := newRecorder()
	_ = a.Connect(ctx, rec)

	a.Disconnect(nil)
	if len(rec.dropped) != 1 || rec.dropped[0] == nil {
		t.Fatalf("dropped = %v", rec.dropped)
	}
	if err := a.Initiate(ctx, adapter.Request{ProductID: "coin", AttemptID: 1}); !errors.Is(err, adapter.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestConnectError(t *testing.T) {
	boom := errors.New("billing unavailable")
	a := fake.New(fake.WithConnectError(boom))
	if err := a.Connect(context.Background(), newRecorder()); !errors.Is(err, boom) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if a.Connects() != 1 {
		t.Fatalf("Connects = %d", a.Connects())
	}
}
