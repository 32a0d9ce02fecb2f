package history

import (
	"context"

	"github.com/knitgrid/tally/internal/domain/link"
)

// Repository provides read access to the ledger. Appends happen inside
// counter commit transactions and are not part of this interface.
type Repository interface {
	Get(ctx context.Context, tenantID string, id int64) (*Entry, error)
	ListForCounter(ctx context.Context, tenantID, counterID string, opts ListOptions) ([]Entry, error)
	ListForProject(ctx context.Context, tenantID, projectID string, opts ListOptions) ([]Entry, error)
}

// UndoResult is the committed outcome of an undo: the new ledger entry plus
// the full change set it caused, cascades included.
type UndoResult struct {
	Entry   *Entry        `json:"entry"`
	Changes []link.Change `json:"changes,omitempty"`
	Skips   []link.Skip   `json:"skips,omitempty"`
}

// Committer re-applies a recorded old value to its counter as a fresh
// committed mutation: bounds checked, cascaded, broadcast, and documented by
// a new undo entry. The reverted entry itself is never touched.
type Committer interface {
	CommitUndo(ctx context.Context, tenantID string, target *Entry, note *string) (*UndoResult, error)
}
