package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/knitgrid/tally/internal/domain/counter"
)

// UnitOfWork implements counter.UnitOfWork on a SQLite transaction.
type UnitOfWork struct {
	db *DB
}

// NewUnitOfWork creates a new UnitOfWork
func NewUnitOfWork(db *DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// InTx runs fn inside one transaction. The repositories handed to fn are
// bound to that transaction, so the value write, history append, and every
// cascade step commit or roll back together.
func (u *UnitOfWork) InTx(ctx context.Context, fn func(tx counter.Tx) error) error {
	sqlTx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&unitTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type unitTx struct {
	tx *sql.Tx
}

func (t *unitTx) Counters() counter.Repository {
	return &CounterRepository{q: t.tx}
}

func (t *unitTx) Links() counter.LinkRepository {
	return &LinkRepository{q: t.tx}
}

func (t *unitTx) History() counter.HistoryRepository {
	return &HistoryRepository{q: t.tx}
}
