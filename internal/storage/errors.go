package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds is returned when a transfer would debit more
	// than the source account holds.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotApproved is returned when a library tries to move funds out
	// of an account without an approval from the account owner.
	ErrNotApproved = errors.New("library not approved on account")
)
