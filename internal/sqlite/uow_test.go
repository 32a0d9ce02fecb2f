package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_Commit(t *testing.T) {
	db := NewTestDB(t)
	uow := NewUnitOfWork(db)
	ctx := context.Background()

	seedProject(t, db, "tenant1", "p1")
	seedCounter(t, db, "tenant1", "p1", "c1")

	err := uow.InTx(ctx, func(tx counter.Tx) error {
		if err := tx.Counters().UpdateValue(ctx, "tenant1", "c1", 0, 1, 0, time.Now()); err != nil {
			return err
		}
		return tx.History().Append(ctx, "tenant1", &history.Entry{
			ProjectID: "p1",
			CounterID: "c1",
			OldValue:  0,
			NewValue:  1,
			Action:    history.ActionIncrement,
			CreatedAt: time.Now(),
		})
	})
	require.NoError(t, err)

	got, err := NewCounterRepository(db).Get(ctx, "tenant1", "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.CurrentValue)

	entries, err := NewHistoryRepository(db).ListForCounter(ctx, "tenant1", "c1", history.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	db := NewTestDB(t)
	uow := NewUnitOfWork(db)
	ctx := context.Background()

	seedProject(t, db, "tenant1", "p1")
	seedCounter(t, db, "tenant1", "p1", "c1")

	boom := errors.New("cascade failed")
	err := uow.InTx(ctx, func(tx counter.Tx) error {
		if err := tx.Counters().UpdateValue(ctx, "tenant1", "c1", 0, 1, 0, time.Now()); err != nil {
			return err
		}
		if err := tx.History().Append(ctx, "tenant1", &history.Entry{
			ProjectID: "p1",
			CounterID: "c1",
			OldValue:  0,
			NewValue:  1,
			Action:    history.ActionIncrement,
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither the value nor the ledger entry survive the rollback
	got, err := NewCounterRepository(db).Get(ctx, "tenant1", "c1")
	require.NoError(t, err)
	require.Equal(t, int64(0), got.CurrentValue)

	entries, err := NewHistoryRepository(db).ListForCounter(ctx, "tenant1", "c1", history.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
