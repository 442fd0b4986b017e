// Package plugin provides the hook system the purchase coordinator
// dispatches lifecycle notifications through. Audit trails and metrics are
// implemented as plugins.
package plugin

import (
	"context"

	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the coordinator is constructed.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, coordinator interface{}) error
}

// OnShutdown is called when the coordinator is closed.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnStoreStateChanged is called on every connection state transition.
type OnStoreStateChanged interface {
	Plugin
	OnStoreStateChanged(ctx context.Context, from, to string) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseRequested is called after the backend accepted a request.
type OnPurchaseRequested interface {
	Plugin
	OnPurchaseRequested(ctx context.Context, productID string, attemptID uint64) error
}

// OnPurchaseSucceeded is called after a grant was persisted.
type OnPurchaseSucceeded interface {
	Plugin
	OnPurchaseSucceeded(ctx context.Context, e event.PurchaseSucceeded) error
}

// OnPurchaseFailed is called for local rejections and backend failures.
type OnPurchaseFailed interface {
	Plugin
	OnPurchaseFailed(ctx context.Context, e event.PurchaseFailed) error
}

// OnPurchaseDeferred is called when the backend reports a pending purchase.
type OnPurchaseDeferred interface {
	Plugin
	OnPurchaseDeferred(ctx context.Context, productID string, attemptID uint64) error
}

// OnOutcomeDropped is called for backend callbacks the coordinator ignored
// (stale attempts, unknown products, redeliveries).
type OnOutcomeDropped interface {
	Plugin
	OnOutcomeDropped(ctx context.Context, o adapter.Outcome, reason string) error
}

// OnPurchasesRestored is called after a restore pass. granted lists the
// products newly recorded; seen is the number of transactions returned.
type OnPurchasesRestored interface {
	Plugin
	OnPurchasesRestored(ctx context.Context, granted []string, seen int) error
}
