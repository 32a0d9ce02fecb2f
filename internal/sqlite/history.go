package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/repository"
)

const defaultHistoryPageSize = 50

// HistoryRepository implements the ledger's persistence for SQLite. Appends
// happen inside commit transactions; reads serve the history API.
type HistoryRepository struct {
	q dbtx
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{q: db}
}

// Append inserts a ledger entry and backfills its assigned id
func (r *HistoryRepository) Append(ctx context.Context, tenantID string, e *history.Entry) error {
	query := `
		INSERT INTO counter_history (
			tenant_id, project_id, counter_id, old_value, new_value,
			action, user_note, triggered_by, undone_entry_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.q.ExecContext(ctx, query,
		tenantID,
		e.ProjectID,
		e.CounterID,
		e.OldValue,
		e.NewValue,
		e.Action,
		e.UserNote,
		e.TriggeredBy,
		e.UndoneEntryID,
		e.CreatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entry id: %w", err)
	}
	e.ID = id
	e.TenantID = tenantID

	return nil
}

// Get retrieves a ledger entry by id
func (r *HistoryRepository) Get(ctx context.Context, tenantID string, id int64) (*history.Entry, error) {
	query := `
		SELECT
			id, tenant_id, project_id, counter_id, old_value, new_value,
			action, user_note, triggered_by, undone_entry_id, created_at
		FROM counter_history
		WHERE id = ? AND tenant_id = ?
	`

	var e history.Entry
	err := r.q.QueryRowContext(ctx, query, id, tenantID).Scan(
		&e.ID,
		&e.TenantID,
		&e.ProjectID,
		&e.CounterID,
		&e.OldValue,
		&e.NewValue,
		&e.Action,
		&e.UserNote,
		&e.TriggeredBy,
		&e.UndoneEntryID,
		&e.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}

	return &e, nil
}

// ListForCounter returns a counter's entries, newest first
func (r *HistoryRepository) ListForCounter(ctx context.Context, tenantID, counterID string, opts history.ListOptions) ([]history.Entry, error) {
	query := `
		SELECT
			id, tenant_id, project_id, counter_id, old_value, new_value,
			action, user_note, triggered_by, undone_entry_id, created_at
		FROM counter_history
		WHERE counter_id = ? AND tenant_id = ?
		ORDER BY id DESC
	`

	return r.queryEntries(ctx, query, opts, counterID, tenantID)
}

// ListForProject returns a project's entries across all counters, newest
// first
func (r *HistoryRepository) ListForProject(ctx context.Context, tenantID, projectID string, opts history.ListOptions) ([]history.Entry, error) {
	query := `
		SELECT
			id, tenant_id, project_id, counter_id, old_value, new_value,
			action, user_note, triggered_by, undone_entry_id, created_at
		FROM counter_history
		WHERE project_id = ? AND tenant_id = ?
		ORDER BY id DESC
	`

	return r.queryEntries(ctx, query, opts, projectID, tenantID)
}

func (r *HistoryRepository) queryEntries(ctx context.Context, query string, opts history.ListOptions, args ...any) ([]history.Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultHistoryPageSize
	}
	query += " LIMIT ?"
	args = append(args, limit)

	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.ProjectID,
			&e.CounterID,
			&e.OldValue,
			&e.NewValue,
			&e.Action,
			&e.UserNote,
			&e.TriggeredBy,
			&e.UndoneEntryID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}
