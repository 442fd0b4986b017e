package audithook

// Action constants for audit events.
const (
	// Purchase actions
	ActionPurchaseRequested = "purchase.requested"
	ActionPurchaseSucceeded = "purchase.succeeded"
	ActionPurchaseFailed    = "purchase.failed"
	ActionPurchaseRejected  = "purchase.rejected"
	ActionPurchaseDeferred  = "purchase.deferred"

	// Backend actions
	ActionOutcomeDropped    = "outcome.dropped"
	ActionStoreStateChanged = "store.state_changed"
	ActionPurchasesRestored = "purchases.restored"
)

// Resource constants for audit events.
const (
	ResourcePurchase    = "purchase"
	ResourceTransaction = "transaction"
	ResourceStore       = "store"
	ResourceEntitlement = "entitlement"
)

// Category constants for audit events.
const (
	CategoryPurchase    = "purchase"
	CategoryEntitlement = "entitlement"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
	OutcomePending = "pending"
)
