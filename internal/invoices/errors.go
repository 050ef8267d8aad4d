package invoices

import "errors"

// Domain errors for invoices.
var (
	ErrNotFound = errors.New("invoice not found")

	ErrInvalidInput = errors.New("invalid invoice input")
	// ErrInvalidLine rejects a submitted line; the whole submission rolls back.
	ErrInvalidLine      = errors.New("invalid invoice line")
	ErrLocationNotFound = errors.New("location not found")
	ErrBuyerNotFound    = errors.New("buyer not found")

	ErrImageNotFound  = errors.New("packed image not found")
	ErrDuplicateTally = errors.New("tally number already in use")
)
