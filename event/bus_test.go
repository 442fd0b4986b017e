package event_test

import (
	"sync"
	"testing"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/id"
)

func succeeded(productID string) event.PurchaseSucceeded {
	return event.PurchaseSucceeded{
		ID:        id.NewEventID(),
		ProductID: productID,
		Product:   catalog.Product{ID: productID},
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := event.NewBus()

	var a, b int
	bus.Subscribe(func(event.Event) { a++ })
	bus.Subscribe(func(event.Event) { b++ })

	bus.Publish(succeeded("coin"))

	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := event.NewBus()

	var n int
	sid := bus.Subscribe(func(event.Event) { n++ })
	if !bus.Unsubscribe(sid) {
		t.Fatal("expected handler to be removed")
	}
	if bus.Unsubscribe(sid) {
		t.Fatal("second Unsubscribe should report false")
	}

	bus.Publish(succeeded("coin"))
	if n != 0 {
		t.Fatalf("unsubscribed handler called %d times", n)
	}
}

func TestMutateDuringDispatch(t *testing.T) {
	bus := event.NewBus()

	var self id.ID
	var selfCalls, lateCalls int
	self = bus.Subscribe(func(event.Event) {
		selfCalls++
		bus.Unsubscribe(self)
		bus.Subscribe(func(event.Event) { lateCalls++ })
	})

	bus.Publish(succeeded("coin"))
	if selfCalls != 1 || lateCalls != 0 {
		t.Fatalf("first publish: self=%d late=%d", selfCalls, lateCalls)
	}

	bus.Publish(succeeded("coin"))
	if selfCalls != 1 || lateCalls != 1 {
		t.Fatalf("second publish: self=%d late=%d", selfCalls, lateCalls)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	bus := event.NewBus()

	var reached bool
	bus.Subscribe(func(event.Event) { panic("boom") })
	bus.Subscribe(func(event.Event) { reached = true })

	bus.Publish(succeeded("coin"))
	if !reached {
		t.Fatal("handler after the panicking one was not called")
	}
}

func TestTypedHandlers(t *testing.T) {
	bus := event.NewBus()

	var ok, failed []string
	bus.Subscribe(event.Handlers{
		Succeeded: func(e event.PurchaseSucceeded) { ok = append(ok, e.ProductID) },
		Failed:    func(e event.PurchaseFailed) { failed = append(failed, e.Reason) },
	}.Handle)

	bus.Publish(succeeded("coin"))
	bus.Publish(event.PurchaseFailed{ID: id.NewEventID(), ProductID: "ghost", Reason: "Product not found"})

	if len(ok) != 1 || ok[0] != "coin" {
		t.Fatalf("succeeded = %v", ok)
	}
	if len(failed) != 1 || failed[0] != "Product not found" {
		t.Fatalf("failed = %v", failed)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := event.NewBus()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sid := bus.Subscribe(func(event.Event) {})
			bus.Unsubscribe(sid)
		}()
		go func() {
			defer wg.Done()
			bus.Publish(succeeded("coin"))
		}()
	}
	wg.Wait()

	if bus.Len() != 0 {
		t.Fatalf("Len = %d, want 0", bus.Len())
	}
}

func TestKinds(t *testing.T) {
	var e event.Event = succeeded("coin")
	if e.Kind() != event.KindPurchaseSucceeded {
		t.Fatalf("Kind = %s", e.Kind())
	}
	e = event.PurchaseFailed{}
	if e.Kind() != event.KindPurchaseFailed {
		t.Fatalf("Kind = %s", e.Kind())
	}
}
