package iap

import "time"

// ConnectionState is the lifecycle of the session with the store backend.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	ConnectFailed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnectFailed:
		return "connect_failed"
	default:
		return "unknown"
	}
}

// PurchaseState is the lifecycle of one purchase attempt.
//
//	Idle -> Requested -> AwaitingConfirmation -> Confirmed | Failed
//	Idle -> Rejected
type PurchaseState int

const (
	Idle PurchaseState = iota
	Requested
	AwaitingConfirmation
	Confirmed
	Failed
	Rejected
)

func (s PurchaseState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends an attempt.
func (s PurchaseState) Terminal() bool {
	return s == Confirmed || s == Failed || s == Rejected
}

// PurchaseRequest describes an attempt while it is in flight. It is never
// persisted.
type PurchaseRequest struct {
	ProductID string
	AttemptID uint64
	State     PurchaseState
	// Deferred is set once the backend reported the attempt as pending.
	Deferred  bool
	StartedAt time.Time
}
