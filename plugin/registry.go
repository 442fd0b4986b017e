package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/event"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting a hook only touches the plugins
// that implement it.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onStoreStateChanged []OnStoreStateChanged
	onPurchaseRequested []OnPurchaseRequested
	onPurchaseSucceeded []OnPurchaseSucceeded
	onPurchaseFailed    []OnPurchaseFailed
	onPurchaseDeferred  []OnPurchaseDeferred
	onOutcomeDropped    []OnOutcomeDropped
	onPurchasesRestored []OnPurchasesRestored
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout. Non-positive values keep the
// current setting.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Hook slices are replaced, never appended in place, so a slice taken
	// by an in-progress emit is not affected.
	if v, ok := p.(OnInit); ok {
		r.onInit = appendCopy(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = appendCopy(r.onShutdown, v)
	}
	if v, ok := p.(OnStoreStateChanged); ok {
		r.onStoreStateChanged = appendCopy(r.onStoreStateChanged, v)
	}
	if v, ok := p.(OnPurchaseRequested); ok {
		r.onPurchaseRequested = appendCopy(r.onPurchaseRequested, v)
	}
	if v, ok := p.(OnPurchaseSucceeded); ok {
		r.onPurchaseSucceeded = appendCopy(r.onPurchaseSucceeded, v)
	}
	if v, ok := p.(OnPurchaseFailed); ok {
		r.onPurchaseFailed = appendCopy(r.onPurchaseFailed, v)
	}
	if v, ok := p.(OnPurchaseDeferred); ok {
		r.onPurchaseDeferred = appendCopy(r.onPurchaseDeferred, v)
	}
	if v, ok := p.(OnOutcomeDropped); ok {
		r.onOutcomeDropped = appendCopy(r.onOutcomeDropped, v)
	}
	if v, ok := p.(OnPurchasesRestored); ok {
		r.onPurchasesRestored = appendCopy(r.onPurchasesRestored, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

func appendCopy[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnStoreStateChanged)(nil)).Elem(), "OnStoreStateChanged")
	checkInterface(reflect.TypeOf((*OnPurchaseRequested)(nil)).Elem(), "OnPurchaseRequested")
	checkInterface(reflect.TypeOf((*OnPurchaseSucceeded)(nil)).Elem(), "OnPurchaseSucceeded")
	checkInterface(reflect.TypeOf((*OnPurchaseFailed)(nil)).Elem(), "OnPurchaseFailed")
	checkInterface(reflect.TypeOf((*OnPurchaseDeferred)(nil)).Elem(), "OnPurchaseDeferred")
	checkInterface(reflect.TypeOf((*OnOutcomeDropped)(nil)).Elem(), "OnOutcomeDropped")
	checkInterface(reflect.TypeOf((*OnPurchasesRestored)(nil)).Elem(), "OnPurchasesRestored")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, coordinator interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, coordinator)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitStoreStateChanged emits a connection state transition.
func (r *Registry) EmitStoreStateChanged(ctx context.Context, from, to string) {
	r.mu.RLock()
	plugins := r.onStoreStateChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnStoreStateChanged", func() error {
			return p.OnStoreStateChanged(ctx, from, to)
		})
	}
}

// EmitPurchaseRequested emits an accepted purchase request.
func (r *Registry) EmitPurchaseRequested(ctx context.Context, productID string, attemptID uint64) {
	r.mu.RLock()
	plugins := r.onPurchaseRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPurchaseRequested", func() error {
			return p.OnPurchaseRequested(ctx, productID, attemptID)
		})
	}
}

// EmitPurchaseSucceeded emits a persisted grant.
func (r *Registry) EmitPurchaseSucceeded(ctx context.Context, e event.PurchaseSucceeded) {
	r.mu.RLock()
	plugins := r.onPurchaseSucceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPurchaseSucceeded", func() error {
			return p.OnPurchaseSucceeded(ctx, e)
		})
	}
}

// EmitPurchaseFailed emits a failed or rejected purchase.
func (r *Registry) EmitPurchaseFailed(ctx context.Context, e event.PurchaseFailed) {
	r.mu.RLock()
	plugins := r.onPurchaseFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPurchaseFailed", func() error {
			return p.OnPurchaseFailed(ctx, e)
		})
	}
}

// EmitPurchaseDeferred emits a deferred outcome.
func (r *Registry) EmitPurchaseDeferred(ctx context.Context, productID string, attemptID uint64) {
	r.mu.RLock()
	plugins := r.onPurchaseDeferred
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPurchaseDeferred", func() error {
			return p.OnPurchaseDeferred(ctx, productID, attemptID)
		})
	}
}

// EmitOutcomeDropped emits an ignored backend callback.
func (r *Registry) EmitOutcomeDropped(ctx context.Context, o adapter.Outcome, reason string) {
	r.mu.RLock()
	plugins := r.onOutcomeDropped
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnOutcomeDropped", func() error {
			return p.OnOutcomeDropped(ctx, o, reason)
		})
	}
}

// EmitPurchasesRestored emits the result of a restore pass.
func (r *Registry) EmitPurchasesRestored(ctx context.Context, granted []string, seen int) {
	r.mu.RLock()
	plugins := r.onPurchasesRestored
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPurchasesRestored", func() error {
			return p.OnPurchasesRestored(ctx, granted, seen)
		})
	}
}

func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the purchase pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
