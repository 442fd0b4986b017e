package iap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/entitlement"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/id"
	"github.com/xraph/iap/plugin"
)

// compile-time interface check
var _ adapter.Listener = (*Coordinator)(nil)

// Coordinator drives purchases for a catalog against one store backend and
// records the resulting grants in an entitlement ledger.
//
// One mutex guards the in-flight map and the connection state. Ledger
// writes, backend calls, event publishing and plugin hooks all run outside
// it. An attempt marked resolving is owned by the goroutine that marked it,
// which is what serializes transitions for a product.
type Coordinator struct {
	catalog *catalog.Provider
	ledger  *entitlement.Ledger
	adapter adapter.Adapter
	bus     *event.Bus
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	restoreOnConnect bool
	attemptTimeout   time.Duration

	attempts atomic.Uint64

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	inflight  map[string]*slot
	confirmed map[string]struct{}
	state     ConnectionState
	connErr   error
	ready     chan struct{}
	closed    bool
}

type slot struct {
	req       PurchaseRequest
	product   catalog.Product
	resolving bool
	timer     *time.Timer
}

// New creates a coordinator. A nil catalog is treated as empty. Call
// Initialize to connect to the backend.
func New(cat *catalog.Catalog, ledger *entitlement.Ledger, a adapter.Adapter, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		catalog:          catalog.NewProvider(cat),
		ledger:           ledger,
		adapter:          a,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		now:              time.Now,
		restoreOnConnect: true,
		baseCtx:          ctx,
		cancel:           cancel,
		inflight:         make(map[string]*slot),
		confirmed:        make(map[string]struct{}),
		ready:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = event.NewBus(event.WithLogger(c.logger))
	}

	c.plugins.EmitInit(ctx, c)
	return c
}

// ──────────────────────────────────────────────────
// Connection lifecycle
// ──────────────────────────────────────────────────

// Initialize starts connecting to the backend and returns immediately.
// Calling it while connecting or connected logs a warning and does nothing.
// After a failed or dropped connection it starts a new attempt. Use Ready
// or WaitReady to learn the result.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connecting || c.state == Connected {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("iap already initialized", "state", state.String())
		return nil
	}

	from := c.state
	c.state = Connecting
	c.connErr = nil
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
	ready := c.ready
	c.mu.Unlock()

	c.plugins.EmitStoreStateChanged(ctx, from.String(), Connecting.String())
	c.logger.Info("connecting to store", "adapter", c.adapter.Name())

	go c.connect(ready)
	return nil
}

func (c *Coordinator) connect(ready chan struct{}) {
	ctx := c.baseCtx

	defer func() {
		if r := recover(); r != nil {
			c.finishConnect(ctx, ready, fmt.Errorf("%w: %v", ErrAdapterConnectionFailed, r))
		}
	}()

	if err := c.adapter.Connect(ctx, c); err != nil {
		c.finishConnect(ctx, ready, fmt.Errorf("%w: %w", ErrAdapterConnectionFailed, err))
		return
	}

	c.fetchCatalog(ctx)

	if c.restoreOnConnect {
		if _, err := c.restore(ctx); err != nil {
			c.logger.Warn("restore on connect failed", "error", err)
		}
	}

	c.finishConnect(ctx, ready, nil)
}

// fetchCatalog asks the backend about every catalog product. The answer is
// informational; missing products are only logged.
func (c *Coordinator) fetchCatalog(ctx context.Context) {
	ids := c.catalog.Current().IDs()
	if len(ids) == 0 {
		return
	}

	fetched, err := c.adapter.FetchCatalog(ctx, ids)
	if err != nil {
		c.logger.Warn("fetch catalog from store failed", "error", err)
		return
	}

	known := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		known[p.ID] = struct{}{}
	}
	for _, productID := range ids {
		if _, ok := known[productID]; !ok {
			c.logger.Warn("product not available in store", "product_id", productID)
		}
	}
}

func (c *Coordinator) finishConnect(ctx context.Context, ready chan struct{}, err error) {
	c.mu.Lock()
	if c.ready != ready || c.state != Connecting {
		// Superseded by Close or a disconnect.
		c.mu.Unlock()
		return
	}
	to := Connected
	if err != nil {
		to = ConnectFailed
	}
	c.state = to
	c.connErr = err
	close(ready)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("store connection failed", "adapter", c.adapter.Name(), "error", err)
	} else {
		c.logger.Info("store connected", "adapter", c.adapter.Name())
	}
	c.plugins.EmitStoreStateChanged(ctx, Connecting.String(), to.String())
}

// OnDisconnected implements adapter.Listener. In-flight attempts stay
// tracked so a backend that reconnects can still resolve them.
func (c *Coordinator) OnDisconnected(err error) {
	c.mu.Lock()
	from := c.state
	if from == Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	c.connErr = fmt.Errorf("%w: %w", ErrStoreDisconnected, err)
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()

	c.logger.Warn("store disconnected", "adapter", c.adapter.Name(), "error", err)
	c.plugins.EmitStoreStateChanged(c.baseCtx, from.String(), Disconnected.String())
}

// ConnectionState returns the current backend session state.
func (c *Coordinator) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready returns a channel closed when the current connection attempt has
// finished, successfully or not.
func (c *Coordinator) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitReady blocks until the current connection attempt finishes and
// returns its error.
func (c *Coordinator) WaitReady(ctx context.Context) error {
	select {
	case <-c.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Connected {
		return nil
	}
	if c.connErr != nil {
		return c.connErr
	}
	return ErrStoreNotInitialized
}

// Close stops pending timers, notifies plugins and closes the ledger.
// Outcomes delivered after Close are ignored.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	from := c.state
	c.state = Disconnected
	for _, s := range c.inflight {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()

	c.cancel()
	if from != Disconnected {
		c.plugins.EmitStoreStateChanged(ctx, from.String(), Disconnected.String())
	}
	c.plugins.EmitShutdown(ctx)

	return c.ledger.Close()
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Products returns the catalog in source order.
func (c *Coordinator) Products() []catalog.Product {
	return c.catalog.Current().All()
}

// Product looks up one catalog entry.
func (c *Coordinator) Product(productID string) (catalog.Product, error) {
	p, err := c.catalog.Current().Lookup(productID)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("%w: %q", ErrProductNotFound, productID)
	}
	return p, nil
}

// ProductType returns the type of a catalog entry.
func (c *Coordinator) ProductType(productID string) (catalog.Type, error) {
	p, err := c.Product(productID)
	if err != nil {
		return "", err
	}
	return p.Type, nil
}

// IsAlreadyPurchased reports whether a non-consumable is owned.
func (c *Coordinator) IsAlreadyPurchased(productID string) bool {
	return c.ledger.IsOwned(productID)
}

// ConsumableAmount returns the accumulated balance of a consumable.
func (c *Coordinator) ConsumableAmount(ctx context.Context, productID string) (int64, error) {
	return c.ledger.ConsumableBalance(ctx, productID)
}

// InFlight returns the attempt currently tracked for productID.
func (c *Coordinator) InFlight(productID string) (PurchaseRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.inflight[productID]
	if !ok {
		return PurchaseRequest{}, false
	}
	return s.req, true
}

// Ledger returns the entitlement ledger.
func (c *Coordinator) Ledger() *entitlement.Ledger { return c.ledger }

// Bus returns the event bus.
func (c *Coordinator) Bus() *event.Bus { return c.bus }

// Subscribe registers a handler for purchase events.
func (c *Coordinator) Subscribe(h event.Handler) id.ID { return c.bus.Subscribe(h) }

// Unsubscribe removes a handler registered with Subscribe.
func (c *Coordinator) Unsubscribe(sid id.ID) bool { return c.bus.Unsubscribe(sid) }

// ReloadCatalog replaces the catalog with the one produced by src. On error
// the current catalog stays in place. Attempts already in flight keep the
// product definition they started with.
func (c *Coordinator) ReloadCatalog(src catalog.Source) error {
	if err := c.catalog.Reload(src); err != nil {
		c.logger.Error("catalog reload failed", "error", err)
		return err
	}
	c.logger.Info("catalog reloaded", "products", c.catalog.Current().Len())
	return nil
}

// ──────────────────────────────────────────────────
// Purchase
// ──────────────────────────────────────────────────

// Purchase starts a purchase and returns its attempt id as soon as the
// backend accepted the request. The outcome is published on the bus.
// Local rejections are both returned and published as PurchaseFailed.
func (c *Coordinator) Purchase(ctx context.Context, productID string) (uint64, error) {
	product, err := c.catalog.Current().Lookup(productID)
	if err != nil {
		return 0, c.reject(ctx, productID, nil, fmt.Errorf("%w: %q", ErrProductNotFound, productID))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, c.reject(ctx, productID, &product, ErrClosed)
	}
	if cur, ok := c.inflight[productID]; ok {
		attempt := cur.req.AttemptID
		c.mu.Unlock()
		return 0, c.reject(ctx, productID, &product,
			fmt.Errorf("%w: %q (attempt %d)", ErrPurchaseAlreadyInProgress, productID, attempt))
	}
	if product.Type == catalog.NonConsumable && c.ledger.IsOwned(productID) {
		c.mu.Unlock()
		return 0, c.reject(ctx, productID, &product, fmt.Errorf("%w: %q", ErrAlreadyPurchased, productID))
	}
	if c.state != Connected {
		state := c.state
		c.mu.Unlock()
		return 0, c.reject(ctx, productID, &product,
			fmt.Errorf("%w: connection is %s", ErrStoreNotInitialized, state))
	}

	attempt := c.attempts.Add(1)
	s := &slot{
		req: PurchaseRequest{
			ProductID: productID,
			AttemptID: attempt,
			State:     Requested,
			StartedAt: c.now(),
		},
		product: product,
	}
	c.inflight[productID] = s
	c.mu.Unlock()

	c.logger.Debug("purchase requested", "product_id", productID, "attempt", attempt)

	if err := c.initiate(ctx, adapter.Request{ProductID: productID, AttemptID: attempt}); err != nil {
		if !c.claim(s) {
			// An outcome already resolved the attempt.
			return attempt, nil
		}
		c.release(s, Failed)
		perr := &AdapterPurchaseError{ProductID: productID, Reason: err.Error(), Err: err}
		c.publishFailed(ctx, &product, attempt, "", perr)
		return attempt, perr
	}

	c.mu.Lock()
	if cur, ok := c.inflight[productID]; ok && cur == s && s.req.State == Requested {
		s.req.State = AwaitingConfirmation
		if c.attemptTimeout > 0 && !s.resolving && !s.req.Deferred {
			s.timer = time.AfterFunc(c.attemptTimeout, func() { c.expire(s) })
		}
	}
	c.mu.Unlock()

	c.plugins.EmitPurchaseRequested(ctx, productID, attempt)
	return attempt, nil
}

// initiate calls the backend, turning a panic into an error so the slot
// can be released.
func (c *Coordinator) initiate(ctx context.Context, req adapter.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("store initiate panicked", "product_id", req.ProductID, "panic", r)
			err = fmt.Errorf("store fault: %v", r)
		}
	}()
	return c.adapter.Initiate(ctx, req)
}

// OnOutcome implements adapter.Listener. It may be called from any
// goroutine, concurrently with Purchase and with itself.
func (c *Coordinator) OnOutcome(o adapter.Outcome) {
	ctx := c.baseCtx

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.logger.Warn("outcome after close ignored", "product_id", o.ProductID, "transaction_id", o.TransactionID)
		return
	}

	switch o.Status {
	case adapter.StatusDeferred:
		c.deferred(ctx, o)
		return
	case adapter.StatusSucceeded, adapter.StatusFailed:
	default:
		c.drop(ctx, o, "unknown status")
		return
	}

	if o.AttemptID == 0 {
		c.replay(ctx, o)
		return
	}

	c.mu.Lock()
	s, ok := c.inflight[o.ProductID]
	current := ok && s.req.AttemptID == o.AttemptID && !s.resolving
	if current {
		s.resolving = true
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	c.mu.Unlock()

	if !current {
		c.drop(ctx, o, "stale attempt")
		return
	}

	if o.Status == adapter.StatusFailed {
		c.release(s, Failed)
		c.confirm(ctx, o.TransactionID)
		perr := &AdapterPurchaseError{ProductID: o.ProductID, Reason: o.Reason}
		c.publishFailed(ctx, &s.product, o.AttemptID, o.TransactionID, perr)
		return
	}

	if err := c.grant(ctx, s.product); err != nil {
		c.release(s, Failed)
		c.confirm(ctx, o.TransactionID)
		c.publishFailed(ctx, &s.product, o.AttemptID, o.TransactionID, err)
		return
	}

	c.release(s, Confirmed)
	c.confirm(ctx, o.TransactionID)
	c.publishSucceeded(ctx, s.product, o.AttemptID, o.TransactionID)
}

// deferred handles a pending outcome. The attempt stays in flight and any
// attempt timer is stopped, since approval may take days.
func (c *Coordinator) deferred(ctx context.Context, o adapter.Outcome) {
	c.mu.Lock()
	s, ok := c.inflight[o.ProductID]
	current := ok && s.req.AttemptID == o.AttemptID && !s.resolving
	if current {
		s.req.Deferred = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	}
	c.mu.Unlock()

	if !current {
		c.drop(ctx, o, "stale attempt")
		return
	}

	c.logger.Info("purchase deferred", "product_id", o.ProductID, "attempt", o.AttemptID)
	c.plugins.EmitPurchaseDeferred(ctx, o.ProductID, o.AttemptID)
}

// replay handles an unsolicited outcome: a transaction the backend kept
// from an earlier session and redelivers until confirmed. Successful ones
// are granted like a purchase; the in-flight map is not touched.
func (c *Coordinator) replay(ctx context.Context, o adapter.Outcome) {
	if c.alreadyConfirmed(o.TransactionID) {
		c.drop(ctx, o, "already confirmed")
		return
	}

	product, err := c.catalog.Current().Lookup(o.ProductID)
	if err != nil {
		c.drop(ctx, o, "unknown product")
		return
	}

	if o.Status == adapter.StatusFailed {
		c.drop(ctx, o, "replayed failure")
		return
	}

	if err := c.grant(ctx, product); err != nil {
		c.confirm(ctx, o.TransactionID)
		c.publishFailed(ctx, &product, 0, o.TransactionID, err)
		return
	}

	c.logger.Info("pending transaction granted", "product_id", o.ProductID, "transaction_id", o.TransactionID)
	c.confirm(ctx, o.TransactionID)
	c.publishSucceeded(ctx, product, 0, o.TransactionID)
}

// drop confirms and ignores an outcome that resolves nothing.
func (c *Coordinator) drop(ctx context.Context, o adapter.Outcome, why string) {
	c.logger.Warn("purchase outcome ignored",
		"product_id", o.ProductID,
		"attempt", o.AttemptID,
		"transaction_id", o.TransactionID,
		"status", string(o.Status),
		"reason", why,
	)
	c.confirm(ctx, o.TransactionID)
	c.plugins.EmitOutcomeDropped(ctx, o, why)
}

// expire fails an attempt whose timer fired before any outcome arrived.
func (c *Coordinator) expire(s *slot) {
	if !c.claim(s) {
		return
	}
	c.release(s, Failed)

	err := fmt.Errorf("%w: %q after %s", ErrPurchaseTimedOut, s.req.ProductID, c.attemptTimeout)
	c.publishFailed(c.baseCtx, &s.product, s.req.AttemptID, "", err)
}

// claim marks s as resolving if it is still the tracked attempt.
func (c *Coordinator) claim(s *slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.inflight[s.req.ProductID]
	if !ok || cur != s || s.resolving {
		return false
	}
	s.resolving = true
	if s.timer != nil {
		s.timer.Stop()
	}
	return true
}

// release records the terminal state and frees the product's slot.
func (c *Coordinator) release(s *slot, state PurchaseState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.req.State = state
	if cur, ok := c.inflight[s.req.ProductID]; ok && cur == s {
		delete(c.inflight, s.req.ProductID)
	}
}

func (c *Coordinator) grant(ctx context.Context, p catalog.Product) error {
	if p.Type == catalog.NonConsumable {
		if _, err := c.ledger.GrantNonConsumable(ctx, p.ID); err != nil {
			c.logger.Error("grant non-consumable failed", "product_id", p.ID, "error", err)
			return fmt.Errorf("%w: %w", ErrGrantNotPersisted, err)
		}
		return nil
	}

	balance, err := c.ledger.AddConsumable(ctx, p.ID, int64(p.Amount))
	if err != nil {
		c.logger.Error("add consumable failed", "product_id", p.ID, "amount", p.Amount, "error", err)
		return fmt.Errorf("%w: %w", ErrGrantNotPersisted, err)
	}
	c.logger.Debug("consumable balance updated", "product_id", p.ID, "balance", balance)
	return nil
}

// confirm acknowledges a transaction to the backend at most once per id.
func (c *Coordinator) confirm(ctx context.Context, transactionID string) {
	if transactionID == "" {
		return
	}

	c.mu.Lock()
	if _, done := c.confirmed[transactionID]; done {
		c.mu.Unlock()
		return
	}
	c.confirmed[transactionID] = struct{}{}
	c.mu.Unlock()

	if err := c.adapter.Confirm(ctx, transactionID); err != nil {
		c.logger.Error("confirm transaction failed", "transaction_id", transactionID, "error", err)
	}
}

func (c *Coordinator) alreadyConfirmed(transactionID string) bool {
	if transactionID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.confirmed[transactionID]
	return ok
}

// reject publishes a local rejection and returns err.
func (c *Coordinator) reject(ctx context.Context, productID string, p *catalog.Product, err error) error {
	c.logger.Warn("purchase rejected", "product_id", productID, "error", err)

	ev := event.PurchaseFailed{
		ID:         id.NewEventID(),
		ProductID:  productID,
		Product:    p,
		Reason:     reason(err),
		Err:        err,
		OccurredAt: c.now(),
	}
	c.bus.Publish(ev)
	c.plugins.EmitPurchaseFailed(ctx, ev)
	return err
}

func (c *Coordinator) publishFailed(ctx context.Context, p *catalog.Product, attempt uint64, txn string, err error) {
	c.logger.Warn("purchase failed",
		"product_id", p.ID,
		"attempt", attempt,
		"transaction_id", txn,
		"error", err,
	)

	ev := event.PurchaseFailed{
		ID:            id.NewEventID(),
		ProductID:     p.ID,
		Product:       p,
		AttemptID:     attempt,
		TransactionID: txn,
		Reason:        reason(err),
		Err:           err,
		OccurredAt:    c.now(),
	}
	c.bus.Publish(ev)
	c.plugins.EmitPurchaseFailed(ctx, ev)
}

func (c *Coordinator) publishSucceeded(ctx context.Context, p catalog.Product, attempt uint64, txn string) {
	c.logger.Info("purchase succeeded",
		"product_id", p.ID,
		"attempt", attempt,
		"transaction_id", txn,
	)

	ev := event.PurchaseSucceeded{
		ID:            id.NewEventID(),
		ProductID:     p.ID,
		Product:       p,
		AttemptID:     attempt,
		TransactionID: txn,
		OccurredAt:    c.now(),
	}
	c.bus.Publish(ev)
	c.plugins.EmitPurchaseSucceeded(ctx, ev)
}

// ──────────────────────────────────────────────────
// Restore
// ──────────────────────────────────────────────────

// RestorePurchases re-grants known non-consumables from the backend's
// confirmed transactions and returns the ids newly recorded. It publishes
// no events. On backends without a restore flow it is a no-op.
func (c *Coordinator) RestorePurchases(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != Connected {
		return nil, fmt.Errorf("%w: connection is %s", ErrStoreNotInitialized, state)
	}
	return c.restore(ctx)
}

func (c *Coordinator) restore(ctx context.Context) ([]string, error) {
	txns, err := c.adapter.RestoreTransactions(ctx)
	if errors.Is(err, adapter.ErrRestoreUnsupported) {
		c.logger.Debug("restore not supported by store", "adapter", c.adapter.Name())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("iap: restore transactions: %w", err)
	}

	cat := c.catalog.Current()
	var (
		granted []string
		errs    MultiError
	)
	for _, txn := range txns {
		p, err := cat.Lookup(txn.ProductID)
		if err != nil {
			c.logger.Debug("restored transaction for unknown product", "product_id", txn.ProductID)
			continue
		}
		if p.Type != catalog.NonConsumable {
			continue
		}

		ok, err := c.ledger.GrantNonConsumable(ctx, p.ID)
		if err != nil {
			errs.Add(fmt.Errorf("%w: %w", ErrGrantNotPersisted, err))
			continue
		}
		if ok {
			granted = append(granted, p.ID)
		}
	}

	c.logger.Info("purchases restored", "transactions", len(txns), "granted", len(granted))
	c.plugins.EmitPurchasesRestored(ctx, granted, len(txns))
	return granted, errs.ErrOrNil()
}
