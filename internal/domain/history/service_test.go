package history_test

import (
	"context"
	"testing"

	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/repository"
	"github.com/knitgrid/tally/internal/repository/mocks"
	"github.com/stretchr/testify/require"
)

func TestHistoryService_Get_NotFound(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.HistoryRepository{}
	repo.On("Get", ctx, "tenant1", int64(99)).Return((*history.Entry)(nil), repository.ErrNotFound)

	svc := history.NewService(repo, &mocks.Committer{}, nil)
	_, err := svc.Get(ctx, "tenant1", 99)
	require.ErrorIs(t, err, history.ErrEntryNotFound)
}

func TestHistoryService_ListValidation(t *testing.T) {
	ctx := context.Background()
	svc := history.NewService(&mocks.HistoryRepository{}, &mocks.Committer{}, nil)

	_, err := svc.ListForCounter(ctx, "tenant1", "", history.ListOptions{})
	require.ErrorIs(t, err, history.ErrInvalidInput)

	_, err = svc.ListForProject(ctx, "tenant1", "", history.ListOptions{})
	require.ErrorIs(t, err, history.ErrInvalidInput)
}

func TestHistoryService_Undo(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	target := &history.Entry{
		ID: 41, TenantID: tenantID, ProjectID: "proj1", CounterID: "c1",
		OldValue: 7, NewValue: 8, Action: history.ActionIncrement,
	}
	undoID := int64(41)
	committed := &history.UndoResult{
		Entry: &history.Entry{
			ID: 42, TenantID: tenantID, ProjectID: "proj1", CounterID: "c1",
			OldValue: 8, NewValue: 7, Action: history.ActionUndo,
			UndoneEntryID: &undoID,
		},
		Changes: []link.Change{{CounterID: "c1", OldValue: 8, NewValue: 7, Action: "undo", EntryID: 42}},
	}

	repo := &mocks.HistoryRepository{}
	repo.On("Get", ctx, tenantID, int64(41)).Return(target, nil)
	committer := &mocks.Committer{}
	committer.On("CommitUndo", ctx, tenantID, target, (*string)(nil)).Return(committed, nil)

	svc := history.NewService(repo, committer, nil)
	res, err := svc.Undo(ctx, tenantID, 41, nil)
	require.NoError(t, err)
	require.Equal(t, history.ActionUndo, res.Entry.Action)
	require.Equal(t, int64(41), *res.Entry.UndoneEntryID)
	require.Len(t, res.Changes, 1)
}

func TestHistoryService_Undo_EntryMissing(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.HistoryRepository{}
	repo.On("Get", ctx, "tenant1", int64(7)).Return((*history.Entry)(nil), repository.ErrNotFound)

	committer := &mocks.Committer{}
	svc := history.NewService(repo, committer, nil)
	_, err := svc.Undo(ctx, "tenant1", 7, nil)
	require.ErrorIs(t, err, history.ErrEntryNotFound)
	committer.AssertNotCalled(t, "CommitUndo", ctx, "tenant1", nil, nil)
}
