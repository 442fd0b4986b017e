package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/plugin"
)

type recording struct {
	name string

	mu    sync.Mutex
	calls []string
}

func (p *recording) Name() string { return p.name }

func (p *recording) record(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, s)
}

func (p *recording) OnPurchaseRequested(_ context.Context, productID string, _ uint64) error {
	p.record("requested:" + productID)
	return nil
}

func (p *recording) OnPurchaseSucceeded(_ context.Context, e event.PurchaseSucceeded) error {
	p.record("succeeded:" + e.ProductID)
	return nil
}

func (p *recording) OnOutcomeDropped(_ context.Context, o adapter.Outcome, reason string) error {
	p.record("dropped:" + o.ProductID + ":" + reason)
	return errors.New("ignored")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnPurchaseFailed(context.Context, event.PurchaseFailed) error {
	time.Sleep(time.Second)
	return nil
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) OnShutdown(context.Context) error { panic("boom") }

func TestRegisterDuplicate(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&recording{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recording{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Fatal("Get returned unexpected plugins")
	}
}

func TestDispatchOnlyToImplementers(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	rec := &recording{name: "rec"}
	_ = r.Register(rec)
	_ = r.Register(panicky{})

	r.EmitPurchaseRequested(ctx, "coin", 1)
	r.EmitPurchaseSucceeded(ctx, event.PurchaseSucceeded{ProductID: "coin"})
	r.EmitOutcomeDropped(ctx, adapter.Outcome{ProductID: "coin"}, "stale")
	r.EmitPurchaseDeferred(ctx, "coin", 1)
	r.EmitShutdown(ctx)

	want := []string{"requested:coin", "succeeded:coin", "dropped:coin:stale"}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v", rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, rec.calls[i], want[i])
		}
	}
}

func TestHookTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slow{})

	start := time.Now()
	r.EmitPurchaseFailed(context.Background(), event.PurchaseFailed{ProductID: "coin"})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("emit blocked for %v", elapsed)
	}
}
