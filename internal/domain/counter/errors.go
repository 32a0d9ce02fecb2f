package counter

import "errors"

var (
	// ErrCounterNotFound indicates the counter doesn't exist.
	ErrCounterNotFound = errors.New("counter not found")
	// ErrProjectNotFound indicates the referenced project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrBoundsExceeded indicates an operation would leave the value outside
	// [min, max]; the counter stays unchanged.
	ErrBoundsExceeded = errors.New("value out of counter bounds")
	// ErrCounterInactive indicates the counter is soft-disabled.
	ErrCounterInactive = errors.New("counter is inactive")
	// ErrCounterLinked indicates active links still reference the counter.
	ErrCounterLinked = errors.New("counter is referenced by active links")
	// ErrParentCycle indicates a parent assignment would create a grouping loop.
	ErrParentCycle = errors.New("counter parent chain would form a cycle")
	// ErrInvalidInput indicates invalid input for counter operations.
	ErrInvalidInput = errors.New("invalid counter input")
)
