package counter

import (
	"context"
	"time"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
)

// Repository provides persistence for counters.
type Repository interface {
	Create(ctx context.Context, tenantID string, c *Counter) error
	Get(ctx context.Context, tenantID, id string) (*Counter, error)
	ListByProject(ctx context.Context, tenantID, projectID string) ([]Counter, error)
	Update(ctx context.Context, tenantID string, c *Counter) error
	UpdateValue(ctx context.Context, tenantID, id string, oldValue, newValue, clicks int64, updatedAt time.Time) error
	UpdateSortOrder(ctx context.Context, tenantID, id string, sortOrder int) error
	Delete(ctx context.Context, tenantID, id string) error
}

// LinkRepository provides the link reads value commits need: outgoing edges
// for cascades and the reference count guarding deletion.
type LinkRepository interface {
	ListActiveFrom(ctx context.Context, tenantID, sourceCounterID string) ([]link.Link, error)
	CountActiveForCounter(ctx context.Context, tenantID, counterID string) (int, error)
}

// ProjectRepository verifies project ownership for counter creation.
type ProjectRepository interface {
	Exists(ctx context.Context, tenantID, projectID string) error
}

// HistoryRepository appends ledger entries inside commit transactions.
type HistoryRepository interface {
	Append(ctx context.Context, tenantID string, e *history.Entry) error
}

// Tx bundles the transaction-bound repositories of one unit of work.
type Tx interface {
	Counters() Repository
	Links() LinkRepository
	History() HistoryRepository
}

// UnitOfWork runs fn inside a single storage transaction. The value write,
// history append, and every cascade step of a root update commit together or
// not at all.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Publisher fans committed changes out to project subscribers. Publishing is
// fire-and-forget and happens only after the unit of work has committed.
type Publisher interface {
	Publish(projectID string, events []broadcast.Event)
}
