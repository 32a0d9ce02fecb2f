package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/repository"
)

// LinkRepository implements link.Repository for SQLite
type LinkRepository struct {
	q dbtx
}

// NewLinkRepository creates a new LinkRepository
func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{q: db}
}

// Create creates a new link
func (r *LinkRepository) Create(ctx context.Context, tenantID string, l *link.Link) error {
	var triggerOp *string
	var triggerValue *int64
	if l.Condition != nil {
		op := string(l.Condition.Operator)
		triggerOp = &op
		v := l.Condition.Value
		triggerValue = &v
	}

	query := `
		INSERT INTO counter_links (
			id, tenant_id, project_id, source_counter_id, target_counter_id,
			link_type, trigger_operator, trigger_value, action_type, action_value,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, query,
		l.ID,
		tenantID,
		l.ProjectID,
		l.SourceCounterID,
		l.TargetCounterID,
		l.Type,
		triggerOp,
		triggerValue,
		l.Action.Type,
		l.Action.Value,
		l.IsActive,
		l.CreatedAt,
		l.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// Get retrieves a link by ID
func (r *LinkRepository) Get(ctx context.Context, tenantID, id string) (*link.Link, error) {
	query := `
		SELECT
			id, tenant_id, project_id, source_counter_id, target_counter_id,
			link_type, trigger_operator, trigger_value, action_type, action_value,
			is_active, created_at, updated_at
		FROM counter_links
		WHERE id = ? AND tenant_id = ?
	`

	var l link.Link
	var triggerOp *string
	var triggerValue *int64
	err := r.q.QueryRowContext(ctx, query, id, tenantID).Scan(
		&l.ID,
		&l.TenantID,
		&l.ProjectID,
		&l.SourceCounterID,
		&l.TargetCounterID,
		&l.Type,
		&triggerOp,
		&triggerValue,
		&l.Action.Type,
		&l.Action.Value,
		&l.IsActive,
		&l.CreatedAt,
		&l.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	if triggerOp != nil && triggerValue != nil {
		l.Condition = &link.Condition{
			Operator: link.Operator(*triggerOp),
			Value:    *triggerValue,
		}
	}

	return &l, nil
}

// ListByProject returns a project's links
func (r *LinkRepository) ListByProject(ctx context.Context, tenantID, projectID string) ([]link.Link, error) {
	query := `
		SELECT
			id, tenant_id, project_id, source_counter_id, target_counter_id,
			link_type, trigger_operator, trigger_value, action_type, action_value,
			is_active, created_at, updated_at
		FROM counter_links
		WHERE project_id = ? AND tenant_id = ?
		ORDER BY created_at ASC, id ASC
	`

	return r.queryLinks(ctx, query, projectID, tenantID)
}

// ListActiveFrom returns the active links out of one counter, in a stable
// order so cascades replay deterministically
func (r *LinkRepository) ListActiveFrom(ctx context.Context, tenantID, sourceCounterID string) ([]link.Link, error) {
	query := `
		SELECT
			id, tenant_id, project_id, source_counter_id, target_counter_id,
			link_type, trigger_operator, trigger_value, action_type, action_value,
			is_active, created_at, updated_at
		FROM counter_links
		WHERE source_counter_id = ? AND tenant_id = ? AND is_active = 1
		ORDER BY created_at ASC, id ASC
	`

	return r.queryLinks(ctx, query, sourceCounterID, tenantID)
}

func (r *LinkRepository) queryLinks(ctx context.Context, query string, args ...any) ([]link.Link, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []link.Link
	for rows.Next() {
		var l link.Link
		var triggerOp *string
		var triggerValue *int64
		if err := rows.Scan(
			&l.ID,
			&l.TenantID,
			&l.ProjectID,
			&l.SourceCounterID,
			&l.TargetCounterID,
			&l.Type,
			&triggerOp,
			&triggerValue,
			&l.Action.Type,
			&l.Action.Value,
			&l.IsActive,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		if triggerOp != nil && triggerValue != nil {
			l.Condition = &link.Condition{
				Operator: link.Operator(*triggerOp),
				Value:    *triggerValue,
			}
		}
		links = append(links, l)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link rows: %w", err)
	}

	return links, nil
}

// Update rewrites a link's behavior fields. Endpoints are immutable.
func (r *LinkRepository) Update(ctx context.Context, tenantID string, l *link.Link) error {
	var triggerOp *string
	var triggerValue *int64
	if l.Condition != nil {
		op := string(l.Condition.Operator)
		triggerOp = &op
		v := l.Condition.Value
		triggerValue = &v
	}

	query := `
		UPDATE counter_links
		SET link_type = ?, trigger_operator = ?, trigger_value = ?,
		    action_type = ?, action_value = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`

	result, err := r.q.ExecContext(ctx, query,
		l.Type,
		triggerOp,
		triggerValue,
		l.Action.Type,
		l.Action.Value,
		l.IsActive,
		l.UpdatedAt,
		l.ID,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
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

// Delete deletes a link
func (r *LinkRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM counter_links WHERE id = ? AND tenant_id = ?`

	result, err := r.q.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
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

// ExistsForPair checks whether a directed edge already connects the pair
func (r *LinkRepository) ExistsForPair(ctx context.Context, tenantID, sourceCounterID, targetCounterID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM counter_links
			WHERE source_counter_id = ? AND target_counter_id = ? AND tenant_id = ?
		)
	`

	var exists bool
	err := r.q.QueryRowContext(ctx, query, sourceCounterID, targetCounterID, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check link pair: %w", err)
	}

	return exists, nil
}

// CountActiveForCounter counts active links touching the counter from
// either end
func (r *LinkRepository) CountActiveForCounter(ctx context.Context, tenantID, counterID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM counter_links
		WHERE tenant_id = ? AND is_active = 1
		  AND (source_counter_id = ? OR target_counter_id = ?)
	`

	var count int
	err := r.q.QueryRowContext(ctx, query, tenantID, counterID, counterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}

	return count, nil
}
