// Package observability provides a metrics plugin that records purchase
// lifecycle counts and latencies through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xraph/iap"
	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnStoreStateChanged = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseRequested = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseSucceeded = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseFailed    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseDeferred  = (*MetricsExtension)(nil)
	_ plugin.OnOutcomeDropped    = (*MetricsExtension)(nil)
	_ plugin.OnPurchasesRestored = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records purchase lifecycle metrics.
// Register it as a coordinator plugin with iap.WithPlugin.
type MetricsExtension struct {
	factory MetricFactory

	// Purchase metrics
	PurchaseRequested Counter
	PurchaseSucceeded Counter
	PurchaseFailed    Counter
	PurchaseRejected  Counter
	PurchaseDeferred  Counter
	PurchaseTimedOut  Counter
	PurchaseLatency   Histogram

	// Backend metrics
	OutcomesDropped  Counter
	StoreConnected   Counter
	StoreConnectFail Counter
	StoreDisconnect  Counter

	// Restore metrics
	RestoreRuns    Counter
	RestoreGranted Counter

	// Error metrics
	GrantErrors Counter

	mu      sync.Mutex
	started map[uint64]time.Time
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PurchaseRequested: factory.Counter("iap.purchase.requested"),
		PurchaseSucceeded: factory.Counter("iap.purchase.succeeded"),
		PurchaseFailed:    factory.Counter("iap.purchase.failed"),
		PurchaseRejected:  factory.Counter("iap.purchase.rejected"),
		PurchaseDeferred:  factory.Counter("iap.purchase.deferred"),
		PurchaseTimedOut:  factory.Counter("iap.purchase.timed_out"),
		PurchaseLatency:   factory.Histogram("iap.purchase.latency_ms"),

		OutcomesDropped:  factory.Counter("iap.outcome.dropped"),
		StoreConnected:   factory.Counter("iap.store.connected"),
		StoreConnectFail: factory.Counter("iap.store.connect_failed"),
		StoreDisconnect:  factory.Counter("iap.store.disconnected"),

		RestoreRuns:    factory.Counter("iap.restore.runs"),
		RestoreGranted: factory.Counter("iap.restore.granted"),

		GrantErrors: factory.Counter("iap.grant.errors"),

		started: make(map[uint64]time.Time),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnStoreStateChanged implements plugin.OnStoreStateChanged.
func (m *MetricsExtension) OnStoreStateChanged(_ context.Context, _, to string) error {
	switch to {
	case iap.Connected.String():
		m.StoreConnected.Inc()
	case iap.ConnectFailed.String():
		m.StoreConnectFail.Inc()
	case iap.Disconnected.String():
		m.StoreDisconnect.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseRequested implements plugin.OnPurchaseRequested.
func (m *MetricsExtension) OnPurchaseRequested(_ context.Context, _ string, attemptID uint64) error {
	m.PurchaseRequested.Inc()

	m.mu.Lock()
	m.started[attemptID] = time.Now()
	m.mu.Unlock()
	return nil
}

// OnPurchaseSucceeded implements plugin.OnPurchaseSucceeded.
func (m *MetricsExtension) OnPurchaseSucceeded(_ context.Context, e event.PurchaseSucceeded) error {
	m.PurchaseSucceeded.Inc()
	m.observeLatency(e.AttemptID)
	return nil
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (m *MetricsExtension) OnPurchaseFailed(_ context.Context, e event.PurchaseFailed) error {
	switch {
	case iap.IsRejected(e.Err):
		m.PurchaseRejected.Inc()
		return nil
	case errors.Is(e.Err, iap.ErrPurchaseTimedOut):
		m.PurchaseTimedOut.Inc()
	case errors.Is(e.Err, iap.ErrGrantNotPersisted):
		m.GrantErrors.Inc()
	}
	m.PurchaseFailed.Inc()
	m.observeLatency(e.AttemptID)
	return nil
}

// OnPurchaseDeferred implements plugin.OnPurchaseDeferred.
func (m *MetricsExtension) OnPurchaseDeferred(_ context.Context, _ string, _ uint64) error {
	m.PurchaseDeferred.Inc()
	return nil
}

// OnOutcomeDropped implements plugin.OnOutcomeDropped.
func (m *MetricsExtension) OnOutcomeDropped(_ context.Context, _ adapter.Outcome, _ string) error {
	m.OutcomesDropped.Inc()
	return nil
}

// OnPurchasesRestored implements plugin.OnPurchasesRestored.
func (m *MetricsExtension) OnPurchasesRestored(_ context.Context, granted []string, _ int) error {
	m.RestoreRuns.Inc()
	m.RestoreGranted.Add(float64(len(granted)))
	return nil
}

func (m *MetricsExtension) observeLatency(attemptID uint64) {
	if attemptID == 0 {
		return
	}

	m.mu.Lock()
	start, ok := m.started[attemptID]
	delete(m.started, attemptID)
	m.mu.Unlock()

	if ok {
		m.PurchaseLatency.Observe(float64(time.Since(start).Milliseconds()))
	}
}
