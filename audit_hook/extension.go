// Package audithook bridges purchase lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/iap"
	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnPurchaseRequested = (*Extension)(nil)
	_ plugin.OnPurchaseSucceeded = (*Extension)(nil)
	_ plugin.OnPurchaseFailed    = (*Extension)(nil)
	_ plugin.OnPurchaseDeferred  = (*Extension)(nil)
	_ plugin.OnOutcomeDropped    = (*Extension)(nil)
	_ plugin.OnStoreStateChanged = (*Extension)(nil)
	_ plugin.OnPurchasesRestored = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges coordinator lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseRequested implements plugin.OnPurchaseRequested.
func (e *Extension) OnPurchaseRequested(ctx context.Context, productID string, attemptID uint64) error {
	return e.record(ctx, ActionPurchaseRequested, SeverityInfo, OutcomePending,
		ResourcePurchase, productID, CategoryPurchase, nil,
		"attempt_id", attemptID,
	)
}

// OnPurchaseSucceeded implements plugin.OnPurchaseSucceeded.
func (e *Extension) OnPurchaseSucceeded(ctx context.Context, ev event.PurchaseSucceeded) error {
	return e.record(ctx, ActionPurchaseSucceeded, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, ev.ProductID, CategoryPurchase, nil,
		"event_id", ev.ID.String(),
		"attempt_id", ev.AttemptID,
		"transaction_id", ev.TransactionID,
		"type", string(ev.Product.Type),
		"amount", ev.Product.Amount,
		"price", ev.Product.Price.String(),
	)
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed. Local rejections are
// recorded as warnings, backend and ledger failures as errors.
func (e *Extension) OnPurchaseFailed(ctx context.Context, ev event.PurchaseFailed) error {
	action, severity := ActionPurchaseFailed, SeverityError
	if iap.IsRejected(ev.Err) {
		action, severity = ActionPurchaseRejected, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		ResourcePurchase, ev.ProductID, CategoryPurchase, ev.Err,
		"event_id", ev.ID.String(),
		"attempt_id", ev.AttemptID,
		"transaction_id", ev.TransactionID,
		"reason", ev.Reason,
	)
}

// OnPurchaseDeferred implements plugin.OnPurchaseDeferred.
func (e *Extension) OnPurchaseDeferred(ctx context.Context, productID string, attemptID uint64) error {
	return e.record(ctx, ActionPurchaseDeferred, SeverityInfo, OutcomePending,
		ResourcePurchase, productID, CategoryPurchase, nil,
		"attempt_id", attemptID,
	)
}

// ──────────────────────────────────────────────────
// Backend hooks
// ──────────────────────────────────────────────────

// OnOutcomeDropped implements plugin.OnOutcomeDropped.
func (e *Extension) OnOutcomeDropped(ctx context.Context, o adapter.Outcome, why string) error {
	return e.record(ctx, ActionOutcomeDropped, SeverityWarning, OutcomeFailure,
		ResourceTransaction, o.TransactionID, CategoryIntegration, nil,
		"product_id", o.ProductID,
		"attempt_id", o.AttemptID,
		"status", string(o.Status),
		"why", why,
	)
}

// OnStoreStateChanged implements plugin.OnStoreStateChanged.
func (e *Extension) OnStoreStateChanged(ctx context.Context, from, to string) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	if to == iap.ConnectFailed.String() {
		severity, outcome = SeverityError, OutcomeFailure
	}
	return e.record(ctx, ActionStoreStateChanged, severity, outcome,
		ResourceStore, "", CategoryIntegration, nil,
		"from", from,
		"to", to,
	)
}

// OnPurchasesRestored implements plugin.OnPurchasesRestored.
func (e *Extension) OnPurchasesRestored(ctx context.Context, granted []string, seen int) error {
	return e.record(ctx, ActionPurchasesRestored, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, "", CategoryEntitlement, nil,
		"granted", granted,
		"transactions", seen,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
