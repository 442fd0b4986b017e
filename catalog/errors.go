package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is wrapped by every load failure.
	ErrParse = errors.New("catalog: parse error")

	// ErrNotFound is returned by Lookup for unknown product ids.
	ErrNotFound = errors.New("catalog: product not found")
)

// ParseError describes an invalid product record.
type ParseError struct {
	Index   int
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("catalog: record %d: %s: %s", e.Index, e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrParse) match.
func (e *ParseError) Unwrap() error { return ErrParse }
