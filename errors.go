package iap

import (
	"errors"
	"fmt"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/entitlement"
)

// Sentinel errors for common failure scenarios.
var (
	// Catalog errors
	ErrCatalogParse    = catalog.ErrParse
	ErrProductNotFound = errors.New("iap: product not found")

	// Purchase rejections, decided locally without contacting the backend
	ErrAlreadyPurchased          = errors.New("iap: already purchased")
	ErrPurchaseAlreadyInProgress = errors.New("iap: purchase already in progress")
	ErrStoreNotInitialized       = errors.New("iap: store not initialized")

	// Backend errors
	ErrAdapterConnectionFailed = errors.New("iap: store connection failed")
	ErrAdapterPurchaseFailed   = errors.New("iap: purchase failed in store")
	ErrStoreDisconnected       = errors.New("iap: store disconnected")
	ErrPurchaseTimedOut        = errors.New("iap: purchase timed out")

	// Ledger errors
	ErrInvalidArgument   = entitlement.ErrInvalidArgument
	ErrGrantNotPersisted = errors.New("iap: grant could not be persisted")

	ErrClosed = errors.New("iap: coordinator closed")
)

// AdapterPurchaseError carries the backend's reason for a failed purchase.
type AdapterPurchaseError struct {
	ProductID string
	Reason    string
	Err       error
}

func (e *AdapterPurchaseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("iap: purchase of %q failed in store", e.ProductID)
	}
	return fmt.Sprintf("iap: purchase of %q failed in store: %s", e.ProductID, e.Reason)
}

// Is makes errors.Is(err, ErrAdapterPurchaseFailed) hold.
func (e *AdapterPurchaseError) Is(target error) bool {
	return target == ErrAdapterPurchaseFailed
}

func (e *AdapterPurchaseError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "iap: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("iap: %d errors occurred", len(e.Errors))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsRejected reports whether a purchase was refused locally, before the
// store backend was contacted.
func IsRejected(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrAlreadyPurchased) ||
		errors.Is(err, ErrPurchaseAlreadyInProgress) ||
		errors.Is(err, ErrStoreNotInitialized)
}

// IsRetryable returns true if a new Purchase call for the same product may
// succeed. The coordinator itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPurchaseAlreadyInProgress) ||
		errors.Is(err, ErrStoreNotInitialized) ||
		errors.Is(err, ErrStoreDisconnected) ||
		errors.Is(err, ErrPurchaseTimedOut) ||
		errors.Is(err, ErrAdapterPurchaseFailed)
}

// reason maps an error to the human-readable text carried by PurchaseFailed.
func reason(err error) string {
	var perr *AdapterPurchaseError
	switch {
	case errors.As(err, &perr) && perr.Reason != "":
		return perr.Reason
	case errors.Is(err, ErrProductNotFound):
		return "Product not found"
	case errors.Is(err, ErrAlreadyPurchased):
		return "Already purchased"
	case errors.Is(err, ErrPurchaseAlreadyInProgress):
		return "Purchase already in progress"
	case errors.Is(err, ErrStoreNotInitialized):
		return "IAP not initialized"
	case errors.Is(err, ErrPurchaseTimedOut):
		return "Purchase timed out"
	case errors.Is(err, ErrGrantNotPersisted):
		return "Purchase could not be saved"
	case errors.Is(err, ErrAdapterPurchaseFailed):
		return "Purchase failed"
	default:
		return err.Error()
	}
}
