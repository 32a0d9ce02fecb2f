package link

import "errors"

var (
	// ErrLinkNotFound indicates the link doesn't exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrSelfLink indicates source and target are the same counter.
	ErrSelfLink = errors.New("link source and target must differ")
	// ErrCrossProject indicates the endpoints belong to different projects.
	ErrCrossProject = errors.New("link endpoints must belong to the same project")
	// ErrDuplicateLink indicates a link already exists for the (source, target) pair.
	ErrDuplicateLink = errors.New("link already exists for this source and target")
	// ErrCounterNotFound indicates an endpoint counter doesn't exist.
	ErrCounterNotFound = errors.New("link endpoint counter not found")
	// ErrInvalidInput indicates a malformed link shape.
	ErrInvalidInput = errors.New("invalid link input")

	// ErrTargetOutOfBounds is returned by an action applier when the action
	// would leave the target outside its bounds; the cascade skips the edge.
	ErrTargetOutOfBounds = errors.New("link action would leave target out of bounds")
	// ErrTargetInactive is returned by an action applier when the target is
	// soft-disabled; the cascade skips the edge.
	ErrTargetInactive = errors.New("link target is inactive")
)
