package project

import "context"

// Repository provides persistence for projects.
type Repository interface {
	Create(ctx context.Context, tenantID string, proj *Project) error
	Get(ctx context.Context, tenantID, id string) (*Project, error)
	List(ctx context.Context, tenantID string) ([]ProjectSummary, error)
	Update(ctx context.Context, tenantID string, proj *Project) error
	Delete(ctx context.Context, tenantID, id string) error
	Exists(ctx context.Context, tenantID, id string) error
}
