package link

import "context"

// Repository provides persistence for links.
type Repository interface {
	Create(ctx context.Context, tenantID string, l *Link) error
	Get(ctx context.Context, tenantID, id string) (*Link, error)
	ListByProject(ctx context.Context, tenantID, projectID string) ([]Link, error)
	ListActiveFrom(ctx context.Context, tenantID, sourceCounterID string) ([]Link, error)
	Update(ctx context.Context, tenantID string, l *Link) error
	Delete(ctx context.Context, tenantID, id string) error
	ExistsForPair(ctx context.Context, tenantID, sourceID, targetID string) (bool, error)
}

// CounterDirectory resolves the project a counter belongs to, for endpoint
// validation at registration time.
type CounterDirectory interface {
	CounterProject(ctx context.Context, tenantID, counterID string) (string, error)
}

// Source supplies the active outgoing links of a counter during a cascade.
// Implementations are bound to the transaction of the root update.
type Source interface {
	ActiveFrom(ctx context.Context, counterID string) ([]Link, error)
}

// Applier executes a fired link's action against its target counter inside
// the root update's transaction. It returns the committed change, or nil when
// the action advanced only the target's invocation tally, or one of
// ErrTargetOutOfBounds / ErrTargetInactive when the edge should be skipped.
type Applier interface {
	Apply(ctx context.Context, l Link) (*Change, error)
}
