package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/knitgrid/tally/internal/repository"
)

// Service handles ledger queries and undo.
type Service struct {
	repo      Repository
	committer Committer
	logger    *slog.Logger
}

// NewService creates a new history service.
func NewService(repo Repository, committer Committer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, committer: committer, logger: logger}
}

// Get fetches a single ledger entry.
func (s *Service) Get(ctx context.Context, tenantID string, id int64) (*Entry, error) {
	e, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("getting history entry: %w", err)
	}
	return e, nil
}

// ListForCounter pages a counter's ledger, newest entry first.
func (s *Service) ListForCounter(ctx context.Context, tenantID, counterID string, opts ListOptions) ([]Entry, error) {
	if counterID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListForCounter(ctx, tenantID, counterID, opts)
}

// ListForProject pages a project's combined ledger, newest entry first.
func (s *Service) ListForProject(ctx context.Context, tenantID, projectID string, opts ListOptions) ([]Entry, error) {
	if projectID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListForProject(ctx, tenantID, projectID, opts)
}

// Undo re-applies the old value recorded in the given entry and returns the
// new undo entry plus the change set it committed. The reverted entry stays
// in the ledger unmodified. Bounds are enforced like any other mutation: an
// old value that no longer fits the counter's current min/max fails the undo
// and changes nothing.
func (s *Service) Undo(ctx context.Context, tenantID string, entryID int64, note *string) (*UndoResult, error) {
	target, err := s.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	undone, err := s.committer.CommitUndo(ctx, tenantID, target, note)
	if err != nil {
		return nil, err
	}

	s.logger.Info("history entry undone",
		"entry_id", target.ID,
		"undo_entry_id", undone.Entry.ID,
		"counter_id", target.CounterID,
		"restored_value", target.OldValue,
	)

	return undone, nil
}
