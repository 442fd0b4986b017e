// Package adapter defines the contract between the purchase coordinator
// and a concrete store backend (a platform purchasing SDK, a test double,
// a server-side receipt service).
//
// Connect, FetchCatalog and RestoreTransactions block until the backend
// answers and honour ctx. Initiate only hands the request to the backend;
// the result arrives later through Listener.OnOutcome, on whatever
// goroutine the backend uses.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/iap/types"
)

var (
	// ErrRestoreUnsupported is returned by RestoreTransactions on backends
	// whose platform has no restore flow.
	ErrRestoreUnsupported = errors.New("adapter: restore not supported")

	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("adapter: not connected")
)

// Status is the result class of a purchase outcome.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusDeferred means the backend is waiting on something outside the
	// app (ask-to-buy, a pending payment). It does not resolve the attempt.
	StatusDeferred Status = "deferred"
)

// Request is handed to Initiate. Backends must echo AttemptID in the
// Outcome they deliver for it.
type Request struct {
	ProductID string
	AttemptID uint64
}

// Outcome is delivered by the backend for an initiated request, or
// unsolicited for a transaction left over from an earlier session (in
// which case AttemptID is 0).
type Outcome struct {
	ProductID     string
	AttemptID     uint64
	TransactionID string
	Status        Status
	Reason        string
}

// Terminal reports whether the outcome resolves its attempt.
func (o Outcome) Terminal() bool {
	return o.Status == StatusSucceeded || o.Status == StatusFailed
}

// Transaction is a previously confirmed purchase returned by restore.
type Transaction struct {
	ID          string
	ProductID   string
	PurchasedAt time.Time
}

// FetchedProduct is the backend's view of a catalog entry. It is
// informational; the local catalog stays authoritative for type and amount.
type FetchedProduct struct {
	ID             string
	Title          string
	Description    string
	Price          types.Money
	LocalizedPrice string
}

// Listener receives asynchronous notifications from a connected backend.
// Implementations must be safe for concurrent use.
type Listener interface {
	OnOutcome(o Outcome)
	OnDisconnected(err error)
}

// Adapter is implemented by each store backend.
type Adapter interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Connect establishes the session and registers the listener.
	Connect(ctx context.Context, l Listener) error

	// FetchCatalog returns the backend's products among ids. Ids it does
	// not know are simply absent from the result.
	FetchCatalog(ctx context.Context, ids []string) ([]FetchedProduct, error)

	// Initiate starts a purchase. A nil error means the backend accepted the
	// request and will deliver an Outcome for it.
	Initiate(ctx context.Context, req Request) error

	// Confirm acknowledges a transaction so the backend stops redelivering it.
	Confirm(ctx context.Context, transactionID string) error

	// RestoreTransactions lists previously confirmed transactions, or
	// returns ErrRestoreUnsupported.
	RestoreTransactions(ctx context.Context) ([]Transaction, error)
}
