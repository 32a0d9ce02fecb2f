package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/knitgrid/tally/internal/domain/project"
	"github.com/knitgrid/tally/internal/repository"
)

// ProjectRepository implements project.Repository for SQLite
type ProjectRepository struct {
	q dbtx
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{q: db}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, tenantID string, proj *project.Project) error {
	query := `
		INSERT INTO projects (id, tenant_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, query,
		proj.ID,
		tenantID,
		proj.Name,
		proj.Description,
		proj.CreatedAt,
		proj.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project by ID
func (r *ProjectRepository) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	query := `
		SELECT id, tenant_id, name, description, created_at, updated_at
		FROM projects
		WHERE id = ? AND tenant_id = ?
	`

	var proj project.Project
	err := r.q.QueryRowContext(ctx, query, id, tenantID).Scan(
		&proj.ID,
		&proj.TenantID,
		&proj.Name,
		&proj.Description,
		&proj.CreatedAt,
		&proj.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &proj, nil
}

// List returns all projects for a tenant with counter counts
func (r *ProjectRepository) List(ctx context.Context, tenantID string) ([]project.ProjectSummary, error) {
	query := `
		SELECT
			p.id,
			p.name,
			p.description,
			p.created_at,
			COUNT(c.id) as counter_count,
			COUNT(CASE WHEN c.is_active = 1 THEN c.id END) as active_counters
		FROM projects p
		LEFT JOIN counters c ON c.project_id = p.id AND c.tenant_id = p.tenant_id
		WHERE p.tenant_id = ?
		GROUP BY p.id, p.name, p.description, p.created_at
		ORDER BY p.created_at DESC
	`

	rows, err := r.q.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var summaries []project.ProjectSummary
	for rows.Next() {
		var summary project.ProjectSummary
		err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Description,
			&summary.CreatedAt,
			&summary.CounterCount,
			&summary.ActiveCounters,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return summaries, nil
}

// Update updates a project's name and description
func (r *ProjectRepository) Update(ctx context.Context, tenantID string, proj *project.Project) error {
	query := `
		UPDATE projects
		SET name = ?, description = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`

	result, err := r.q.ExecContext(ctx, query,
		proj.Name,
		proj.Description,
		proj.UpdatedAt,
		proj.ID,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
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

// Delete deletes a project. Counters, links, and history cascade with it.
func (r *ProjectRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM projects WHERE id = ? AND tenant_id = ?`

	result, err := r.q.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
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

// Exists checks that the tenant owns the project
func (r *ProjectRepository) Exists(ctx context.Context, tenantID, id string) error {
	query := `SELECT 1 FROM projects WHERE id = ? AND tenant_id = ?`

	var one int
	err := r.q.QueryRowContext(ctx, query, id, tenantID).Scan(&one)

	if err == sql.ErrNoRows {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}

	return nil
}
