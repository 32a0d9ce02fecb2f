package history

import "errors"

var (
	// ErrEntryNotFound indicates the history entry doesn't exist.
	ErrEntryNotFound = errors.New("history entry not found")
	// ErrInvalidInput indicates invalid input for ledger operations.
	ErrInvalidInput = errors.New("invalid history input")
)
