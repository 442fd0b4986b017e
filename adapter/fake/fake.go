// Package fake provides a scriptable in-process store backend. Tests drive
// it by resolving pending requests explicitly; demos can turn on
// auto-resolution so every purchase succeeds shortly after it is made.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/id"
)

// compile-time interface check
var _ adapter.Adapter = (*Adapter)(nil)

// Option configures the fake backend.
type Option func(*Adapter)

// WithProducts sets the products FetchCatalog knows about.
func WithProducts(products ...adapter.FetchedProduct) Option {
	return func(a *Adapter) {
		for _, p := range products {
			a.products[p.ID] = p
		}
	}
}

// WithConnectError makes Connect fail with err.
func WithConnectError(err error) Option {
	return func(a *Adapter) { a.connectErr = err }
}

// WithConnectPanic makes Connect panic, simulating a faulting SDK.
func WithConnectPanic(v any) Option {
	return func(a *Adapter) { a.connectPanic = v }
}

// WithRestore sets the transactions RestoreTransactions returns.
func WithRestore(txns ...adapter.Transaction) Option {
	return func(a *Adapter) { a.restore = append(a.restore, txns...) }
}

// WithoutRestore makes RestoreTransactions return ErrRestoreUnsupported.
func WithoutRestore() Option {
	return func(a *Adapter) { a.restoreUnsupported = true }
}

// WithAutoResolve makes every accepted request resolve with status after
// delay, on its own goroutine.
func WithAutoResolve(status adapter.Status, delay time.Duration) Option {
	return func(a *Adapter) {
		a.auto = true
		a.autoStatus = status
		a.autoDelay = delay
	}
}

// Adapter is the fake backend. All methods are safe for concurrent use.
type Adapter struct {
	mu sync.Mutex

	products           map[string]adapter.FetchedProduct
	connectErr         error
	connectPanic       any
	initiateErr        error
	restore            []adapter.Transaction
	restoreUnsupported bool

	auto       bool
	autoStatus adapter.Status
	autoDelay  time.Duration

	listener  adapter.Listener
	connects  int
	initiated []adapter.Request
	pending   map[string]adapter.Request
	confirmed []string
	fetched   [][]string
}

// New creates a fake backend.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		products: make(map[string]adapter.FetchedProduct),
		pending:  make(map[string]adapter.Request),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "fake" }

func (a *Adapter) Connect(ctx context.Context, l adapter.Listener) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.connects++
	panicV, err := a.connectPanic, a.connectErr
	if panicV == nil && err == nil {
		a.listener = l
	}
	a.mu.Unlock()

	if panicV != nil {
		panic(panicV)
	}
	return err
}

func (a *Adapter) FetchCatalog(ctx context.Context, ids []string) ([]adapter.FetchedProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener == nil {
		return nil, adapter.ErrNotConnected
	}
	a.fetched = append(a.fetched, append([]string(nil), ids...))

	out := make([]adapter.FetchedProduct, 0, len(ids))
	for _, productID := range ids {
		if p, ok := a.products[productID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *Adapter) Initiate(ctx context.Context, req adapter.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.listener == nil {
		a.mu.Unlock()
		return adapter.ErrNotConnected
	}
	if a.initiateErr != nil {
		err := a.initiateErr
		a.mu.Unlock()
		return err
	}
	a.initiated = append(a.initiated, req)
	a.pending[req.ProductID] = req
	auto, status, delay := a.auto, a.autoStatus, a.autoDelay
	a.mu.Unlock()

	if auto {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			a.resolve(req, status, "")
		}()
	}
	return nil
}

func (a *Adapter) Confirm(_ context.Context, transactionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.confirmed = append(a.confirmed, transactionID)
	return nil
}

func (a *Adapter) RestoreTransactions(ctx context.Context) ([]adapter.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.restoreUnsupported {
		return nil, adapter.ErrRestoreUnsupported
	}
	return append([]adapter.Transaction(nil), a.restore...), nil
}

// ──────────────────────────────────────────────────
// Scripting
// ──────────────────────────────────────────────────

// SetInitiateError makes later Initiate calls fail with err. Nil clears it.
func (a *Adapter) SetInitiateError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initiateErr = err
}

// Pending returns the latest unresolved request for productID.
func (a *Adapter) Pending(productID string) (adapter.Request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.pending[productID]
	return req, ok
}

// Succeed resolves the pending request for productID successfully and
// returns the minted transaction id.
func (a *Adapter) Succeed(productID string) (string, error) {
	req, ok := a.Pending(productID)
	if !ok {
		return "", fmt.Errorf("fake: no pending request for %q", productID)
	}
	return a.resolve(req, adapter.StatusSucceeded, ""), nil
}

// Fail resolves the pending request for productID with reason.
func (a *Adapter) Fail(productID, reason string) (string, error) {
	req, ok := a.Pending(productID)
	if !ok {
		return "", fmt.Errorf("fake: no pending request for %q", productID)
	}
	return a.resolve(req, adapter.StatusFailed, reason), nil
}

// Defer reports the pending request for productID as deferred. The request
// stays pending.
func (a *Adapter) Defer(productID string) error {
	req, ok := a.Pending(productID)
	if !ok {
		return fmt.Errorf("fake: no pending request for %q", productID)
	}
	a.Deliver(adapter.Outcome{
		ProductID: req.ProductID,
		AttemptID: req.AttemptID,
		Status:    adapter.StatusDeferred,
	})
	return nil
}

// Deliver hands o to the listener as-is. Use it to replay delayed, stale or
// duplicated callbacks. It is a no-op before Connect.
func (a *Adapter) Deliver(o adapter.Outcome) {
	a.mu.Lock()
	l := a.listener
	a.mu.Unlock()

	if l != nil {
		l.OnOutcome(o)
	}
}

// Disconnect drops the session and notifies the listener.
func (a *Adapter) Disconnect(err error) {
	a.mu.Lock()
	l := a.listener
	a.listener = nil
	a.mu.Unlock()

	if l != nil {
		if err == nil {
			err = errors.New("fake: disconnected")
		}
		l.OnDisconnected(err)
	}
}

// resolve delivers a terminal outcome for req and returns its transaction id.
func (a *Adapter) resolve(req adapter.Request, status adapter.Status, reason string) string {
	txn := id.NewTransactionID().String()

	a.mu.Lock()
	if cur, ok := a.pending[req.ProductID]; ok && cur.AttemptID == req.AttemptID {
		delete(a.pending, req.ProductID)
	}
	a.mu.Unlock()

	a.Deliver(adapter.Outcome{
		ProductID:     req.ProductID,
		AttemptID:     req.AttemptID,
		TransactionID: txn,
		Status:        status,
		Reason:        reason,
	})
	return txn
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

// Connects returns how many times Connect was called.
func (a *Adapter) Connects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// Initiated returns every accepted request in order.
func (a *Adapter) Initiated() []adapter.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapter.Request(nil), a.initiated...)
}

// InitiateCount returns how many requests were accepted for productID.
func (a *Adapter) InitiateCount(productID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, req := range a.initiated {
		if req.ProductID == productID {
			n++
		}
	}
	return n
}

// Confirmed returns every confirmed transaction id in order.
func (a *Adapter) Confirmed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.confirmed...)
}

// Fetched returns the id lists passed to FetchCatalog.
func (a *Adapter) Fetched() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]string(nil), a.fetched...)
}
