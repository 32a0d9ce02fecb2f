package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/repository"
)

// CounterRepository implements counter.Repository for SQLite
type CounterRepository struct {
	q dbtx
}

// NewCounterRepository creates a new CounterRepository
func NewCounterRepository(db *DB) *CounterRepository {
	return &CounterRepository{q: db}
}

// Create creates a new counter
func (r *CounterRepository) Create(ctx context.Context, tenantID string, c *counter.Counter) error {
	pattern, err := json.Marshal(c.Pattern)
	if err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}

	query := `
		INSERT INTO counters (
			id, tenant_id, project_id, parent_id, name, current_value,
			min_value, max_value, increment_by, pattern, clicks,
			display_color, is_visible, sort_order, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.q.ExecContext(ctx, query,
		c.ID,
		tenantID,
		c.ProjectID,
		c.ParentID,
		c.Name,
		c.CurrentValue,
		c.MinValue,
		c.MaxValue,
		c.IncrementBy,
		string(pattern),
		c.Clicks,
		c.DisplayColor,
		c.IsVisible,
		c.SortOrder,
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create counter: %w", err)
	}

	return nil
}

// Get retrieves a counter by ID
func (r *CounterRepository) Get(ctx context.Context, tenantID, id string) (*counter.Counter, error) {
	query := `
		SELECT
			id, tenant_id, project_id, parent_id, name, current_value,
			min_value, max_value, increment_by, pattern, clicks,
			display_color, is_visible, sort_order, is_active, created_at, updated_at
		FROM counters
		WHERE id = ? AND tenant_id = ?
	`

	var c counter.Counter
	var pattern string
	err := r.q.QueryRowContext(ctx, query, id, tenantID).Scan(
		&c.ID,
		&c.TenantID,
		&c.ProjectID,
		&c.ParentID,
		&c.Name,
		&c.CurrentValue,
		&c.MinValue,
		&c.MaxValue,
		&c.IncrementBy,
		&pattern,
		&c.Clicks,
		&c.DisplayColor,
		&c.IsVisible,
		&c.SortOrder,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get counter: %w", err)
	}

	if err := json.Unmarshal([]byte(pattern), &c.Pattern); err != nil {
		return nil, fmt.Errorf("failed to decode pattern: %w", err)
	}

	return &c, nil
}

// ListByProject returns a project's counters in sort order
func (r *CounterRepository) ListByProject(ctx context.Context, tenantID, projectID string) ([]counter.Counter, error) {
	query := `
		SELECT
			id, tenant_id, project_id, parent_id, name, current_value,
			min_value, max_value, increment_by, pattern, clicks,
			display_color, is_visible, sort_order, is_active, created_at, updated_at
		FROM counters
		WHERE project_id = ? AND tenant_id = ?
		ORDER BY sort_order ASC, created_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, projectID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}
	defer rows.Close()

	var counters []counter.Counter
	for rows.Next() {
		var c counter.Counter
		var pattern string
		if err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.ProjectID,
			&c.ParentID,
			&c.Name,
			&c.CurrentValue,
			&c.MinValue,
			&c.MaxValue,
			&c.IncrementBy,
			&pattern,
			&c.Clicks,
			&c.DisplayColor,
			&c.IsVisible,
			&c.SortOrder,
			&c.IsActive,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		if err := json.Unmarshal([]byte(pattern), &c.Pattern); err != nil {
			return nil, fmt.Errorf("failed to decode pattern: %w", err)
		}
		counters = append(counters, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counter rows: %w", err)
	}

	return counters, nil
}

// Update rewrites a counter's definition fields
func (r *CounterRepository) Update(ctx context.Context, tenantID string, c *counter.Counter) error {
	pattern, err := json.Marshal(c.Pattern)
	if err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}

	query := `
		UPDATE counters
		SET parent_id = ?, name = ?, min_value = ?, max_value = ?,
		    increment_by = ?, pattern = ?, clicks = ?, display_color = ?,
		    is_visible = ?, sort_order = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`

	result, err := r.q.ExecContext(ctx, query,
		c.ParentID,
		c.Name,
		c.MinValue,
		c.MaxValue,
		c.IncrementBy,
		string(pattern),
		c.Clicks,
		c.DisplayColor,
		c.IsVisible,
		c.SortOrder,
		c.IsActive,
		c.UpdatedAt,
		c.ID,
		tenantID,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to update counter: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateValue commits a value transition guarded by the expected old value
func (r *CounterRepository) UpdateValue(ctx context.Context, tenantID, id string, oldValue, newValue, clicks int64, updatedAt time.Time) error {
	query := `
		UPDATE counters
		SET current_value = ?, clicks = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND current_value = ?
	`

	result, err := r.q.ExecContext(ctx, query,
		newValue,
		clicks,
		updatedAt,
		id,
		tenantID,
		oldValue,
	)
	if err != nil {
		return fmt.Errorf("failed to update counter value: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Check if counter exists
		var exists bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM counters WHERE id = ? AND tenant_id = ?)`
		err = r.q.QueryRowContext(ctx, checkQuery, id, tenantID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check counter existence: %w", err)
		}

		if !exists {
			return repository.ErrNotFound
		}

		// Counter exists but the value moved underneath us - conflict
		return repository.ErrConflict
	}

	return nil
}

// UpdateSortOrder rewrites a single counter's sort position
func (r *CounterRepository) UpdateSortOrder(ctx context.Context, tenantID, id string, sortOrder int) error {
	query := `UPDATE counters SET sort_order = ? WHERE id = ? AND tenant_id = ?`

	result, err := r.q.ExecContext(ctx, query, sortOrder, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update sort order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete deletes a counter. Its links and history cascade with it.
func (r *CounterRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM counters WHERE id = ? AND tenant_id = ?`

	result, err := r.q.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete counter: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// CounterProject resolves a counter's owning project
func (r *CounterRepository) CounterProject(ctx context.Context, tenantID, counterID string) (string, error) {
	query := `SELECT project_id FROM counters WHERE id = ? AND tenant_id = ?`

	var projectID string
	err := r.q.QueryRowContext(ctx, query, counterID, tenantID).Scan(&projectID)

	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve counter project: %w", err)
	}

	return projectID, nil
}
