// Package entitlement implements the persisted record of what the user has
// been granted: a set of owned non-consumable products and a balance per
// consumable product.
//
// The ledger is the only writer of its backing store.Store. Every mutation
// is persisted with store.SetAtomic before the call returns. Layout:
//
//	"NonConsumablePurchases" -> JSON array of product ids, in grant order
//	<product id>             -> decimal consumable balance
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/store"
)

// NonConsumableKey is the store key holding the owned non-consumable set.
const NonConsumableKey = catalog.ReservedID

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger for the ledger.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// Ledger is safe for concurrent use. Non-consumable grants serialize on one
// lock; each consumable key has its own lock, so balances for different
// products are written independently.
type Ledger struct {
	store  store.Store
	logger *slog.Logger

	ncMu  sync.Mutex
	order []string
	owned map[string]struct{}

	balMu    sync.Mutex
	balances map[string]int64
	keyLocks map[string]*sync.Mutex
}

// Open builds a ledger over s and loads the owned non-consumable set.
// Balances are read lazily, one key at a time.
func Open(ctx context.Context, s store.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    s,
		logger:   slog.Default(),
		owned:    make(map[string]struct{}),
		balances: make(map[string]int64),
		keyLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, err := s.Get(ctx, NonConsumableKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("entitlement: load %s: %w", NonConsumableKey, err)
	}

	var ids []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, NonConsumableKey, err)
		}
	}
	for _, productID := range ids {
		if _, dup := l.owned[productID]; dup {
			continue
		}
		l.owned[productID] = struct{}{}
		l.order = append(l.order, productID)
	}
	return l, nil
}

// IsOwned reports whether productID has been granted as a non-consumable.
func (l *Ledger) IsOwned(productID string) bool {
	l.ncMu.Lock()
	defer l.ncMu.Unlock()
	_, ok := l.owned[productID]
	return ok
}

// Owned returns the owned non-consumable ids in grant order.
func (l *Ledger) Owned() []string {
	l.ncMu.Lock()
	defer l.ncMu.Unlock()
	return append([]string(nil), l.order...)
}

// GrantNonConsumable records ownership of productID. Granting an id that
// is already owned is a no-op and reports granted == false. The in-memory
// set changes only after the store accepted the write.
func (l *Ledger) GrantNonConsumable(ctx context.Context, productID string) (granted bool, err error) {
	if productID == "" {
		return false, fmt.Errorf("%w: empty product id", ErrInvalidArgument)
	}

	l.ncMu.Lock()
	defer l.ncMu.Unlock()

	if _, ok := l.owned[productID]; ok {
		return false, nil
	}

	next := make([]string, len(l.order), len(l.order)+1)
	copy(next, l.order)
	next = append(next, productID)

	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("entitlement: encode owned set: %w", err)
	}
	if err := l.store.SetAtomic(ctx, NonConsumableKey, string(data)); err != nil {
		return false, fmt.Errorf("entitlement: persist grant %q: %w", productID, err)
	}

	l.order = next
	l.owned[productID] = struct{}{}
	l.logger.Debug("non-consumable granted", "product_id", productID)
	return true, nil
}

// ConsumableBalance returns the balance for productID, 0 if never granted.
func (l *Ledger) ConsumableBalance(ctx context.Context, productID string) (int64, error) {
	if err := checkConsumableKey(productID); err != nil {
		return 0, err
	}

	mu := l.keyLock(productID)
	mu.Lock()
	defer mu.Unlock()

	return l.loadBalance(ctx, productID)
}

// AddConsumable adds delta to productID's balance and returns the new
// balance. delta must be positive; balances are never decremented here.
func (l *Ledger) AddConsumable(ctx context.Context, productID string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("%w: delta must be positive, got %d", ErrInvalidArgument, delta)
	}
	if err := checkConsumableKey(productID); err != nil {
		return 0, err
	}

	mu := l.keyLock(productID)
	mu.Lock()
	defer mu.Unlock()

	current, err := l.loadBalance(ctx, productID)
	if err != nil {
		return 0, err
	}
	if current > math.MaxInt64-delta {
		return current, fmt.Errorf("%w: %q", ErrOverflow, productID)
	}
	next := current + delta

	if err := l.store.SetAtomic(ctx, productID, strconv.FormatInt(next, 10)); err != nil {
		return current, fmt.Errorf("entitlement: persist balance %q: %w", productID, err)
	}

	l.balMu.Lock()
	l.balances[productID] = next
	l.balMu.Unlock()

	l.logger.Debug("consumable added",
		"product_id", productID,
		"delta", delta,
		"balance", next,
	)
	return next, nil
}

// keyLock returns the lock serializing writes to one consumable key.
func (l *Ledger) keyLock(productID string) *sync.Mutex {
	l.balMu.Lock()
	defer l.balMu.Unlock()

	mu, ok := l.keyLocks[productID]
	if !ok {
		mu = new(sync.Mutex)
		l.keyLocks[productID] = mu
	}
	return mu
}

// loadBalance must be called with the key lock held.
func (l *Ledger) loadBalance(ctx context.Context, productID string) (int64, error) {
	l.balMu.Lock()
	v, ok := l.balances[productID]
	l.balMu.Unlock()
	if ok {
		return v, nil
	}

	raw, err := l.store.Get(ctx, productID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		v = 0
	case err != nil:
		return 0, fmt.Errorf("entitlement: load balance %q: %w", productID, err)
	default:
		v, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: balance %q = %q", ErrCorrupt, productID, raw)
		}
	}

	l.balMu.Lock()
	l.balances[productID] = v
	l.balMu.Unlock()
	return v, nil
}

func checkConsumableKey(productID string) error {
	switch productID {
	case "":
		return fmt.Errorf("%w: empty product id", ErrInvalidArgument)
	case NonConsumableKey:
		return fmt.Errorf("%w: %q is a reserved key", ErrInvalidArgument, productID)
	}
	return nil
}

// Close releases the backing store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
