// Package event carries the user-facing purchase notifications and the
// in-process bus that delivers them.
package event

import (
	"time"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/id"
)

// Kind names an event type.
type Kind string

const (
	KindPurchaseSucceeded Kind = "purchase.succeeded"
	KindPurchaseFailed    Kind = "purchase.failed"
)

// Event is either PurchaseSucceeded or PurchaseFailed.
type Event interface {
	// EventID is minted fresh for every publish, so a redelivered backend
	// transaction gets a new one. Deduplicate on TransactionID instead.
	EventID() id.ID
	Kind() Kind
}

// PurchaseSucceeded is published after the grant for a purchase has been
// persisted.
type PurchaseSucceeded struct {
	ID            id.ID           `json:"id"`
	ProductID     string          `json:"product_id"`
	Product       catalog.Product `json:"product"`
	AttemptID     uint64          `json:"attempt_id"`
	// TransactionID is the backend's identifier and is stable across
	// redeliveries of the same purchase.
	TransactionID string          `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// PurchaseFailed is published for every purchase that did not end in a
// grant, whether it was rejected locally or failed in the backend.
type PurchaseFailed struct {
	ID        id.ID  `json:"id"`
	ProductID string `json:"product_id"`
	// Product is nil when ProductID is not in the catalog.
	Product       *catalog.Product `json:"product,omitempty"`
	AttemptID     uint64           `json:"attempt_id,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Reason        string           `json:"reason"`
	Err           error            `json:"-"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func (e PurchaseSucceeded) EventID() id.ID { return e.ID }
func (PurchaseSucceeded) Kind() Kind       { return KindPurchaseSucceeded }

func (e PurchaseFailed) EventID() id.ID { return e.ID }
func (PurchaseFailed) Kind() Kind       { return KindPurchaseFailed }
