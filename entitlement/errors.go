package entitlement

import "errors"

var (
	// ErrInvalidArgument is returned for a non-positive consumable delta or a
	// product id that collides with a reserved ledger key.
	ErrInvalidArgument = errors.New("entitlement: invalid argument")

	// ErrCorrupt is returned when a persisted value cannot be decoded.
	ErrCorrupt = errors.New("entitlement: corrupt persisted value")

	// ErrOverflow is returned when a consumable balance would exceed int64.
	ErrOverflow = errors.New("entitlement: balance overflow")
)
