package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/repository"
	"github.com/google/uuid"
)

// Service handles project operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new project service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateRequest defines project creation inputs. ID is optional; callers
// importing existing projects may supply their own.
type CreateRequest struct {
	ID          string
	Name        string
	Description string
}

// UpdateRequest defines project edits. A nil Description keeps the current
// one.
type UpdateRequest struct {
	Name        string
	Description *string
}

// Create creates a new project.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest) (*Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidInput
	}

	id := req.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	now := time.Now()
	proj := &Project{
		ID:          id,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, tenantID, proj); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.logger.Info("project created", "project_id", proj.ID, "name", proj.Name)
	return proj, nil
}

// Get fetches a project by ID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Project, error) {
	proj, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// List returns project summaries with counter counts.
func (s *Service) List(ctx context.Context, tenantID string) ([]ProjectSummary, error) {
	return s.repo.List(ctx, tenantID)
}

// Update renames a project.
func (s *Service) Update(ctx context.Context, tenantID, id string, req UpdateRequest) (*Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidInput
	}

	proj, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	proj.Name = req.Name
	if req.Description != nil {
		proj.Description = *req.Description
	}
	proj.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, tenantID, proj); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("updating project: %w", err)
	}
	return proj, nil
}

// Delete removes a project and everything scoped to it: counters, links,
// and history go with it.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("deleting project: %w", err)
	}

	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// AuthorizeProject reports whether the tenant owns the project. Missing and
// foreign projects are indistinguishable under tenant scoping, so both deny
// the feed.
func (s *Service) AuthorizeProject(ctx context.Context, tenantID, projectID string) error {
	if err := s.repo.Exists(ctx, tenantID, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return broadcast.ErrUnauthorized
		}
		return fmt.Errorf("authorizing project: %w", err)
	}
	return nil
}
