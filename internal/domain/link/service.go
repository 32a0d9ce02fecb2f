package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/knitgrid/tally/internal/repository"
	"github.com/google/uuid"
)

// Service handles link registration and lifecycle.
type Service struct {
	links    Repository
	counters CounterDirectory
	logger   *slog.Logger
}

// NewService creates a new link service.
func NewService(links Repository, counters CounterDirectory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{links: links, counters: counters, logger: logger}
}

// RegisterRequest describes a link registration.
type RegisterRequest struct {
	ProjectID       string
	SourceCounterID string
	TargetCounterID string
	Type            Type
	Condition       *Condition
	Action          Action
}

// UpdateRequest describes a link update. Endpoints are immutable; changing
// the pair means deleting the link and registering a new one.
type UpdateRequest struct {
	ID        string
	Type      *Type
	Condition *Condition
	Action    *Action
	IsActive  *bool
}

// Register validates and persists a new link. Both counters must exist in
// the caller's tenant and belong to the given project, the pair must be
// distinct and not already linked. Longer cycles through other links are
// allowed here; the cascade guard handles them at execution time.
func (s *Service) Register(ctx context.Context, tenantID string, req RegisterRequest) (*Link, error) {
	if req.ProjectID == "" || req.SourceCounterID == "" || req.TargetCounterID == "" {
		return nil, ErrInvalidInput
	}
	if req.SourceCounterID == req.TargetCounterID {
		return nil, ErrSelfLink
	}

	l := &Link{
		ID:              uuid.Must(uuid.NewV7()).String(),
		TenantID:        tenantID,
		ProjectID:       req.ProjectID,
		SourceCounterID: req.SourceCounterID,
		TargetCounterID: req.TargetCounterID,
		Type:            req.Type,
		Condition:       req.Condition,
		Action:          req.Action,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	l.UpdatedAt = l.CreatedAt

	if err := l.ValidateShape(); err != nil {
		return nil, err
	}

	for _, counterID := range []string{req.SourceCounterID, req.TargetCounterID} {
		projectID, err := s.counters.CounterProject(ctx, tenantID, counterID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrCounterNotFound
			}
			return nil, fmt.Errorf("resolving counter %s: %w", counterID, err)
		}
		if projectID != req.ProjectID {
			return nil, ErrCrossProject
		}
	}

	exists, err := s.links.ExistsForPair(ctx, tenantID, req.SourceCounterID, req.TargetCounterID)
	if err != nil {
		return nil, fmt.Errorf("checking link pair: %w", err)
	}
	if exists {
		return nil, ErrDuplicateLink
	}

	if err := s.links.Create(ctx, tenantID, l); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateLink
		}
		return nil, fmt.Errorf("creating link: %w", err)
	}

	s.logger.Info("link registered",
		"link_id", l.ID,
		"project_id", l.ProjectID,
		"source_counter_id", l.SourceCounterID,
		"target_counter_id", l.TargetCounterID,
		"type", l.Type,
	)

	return l, nil
}

// Get fetches a link by ID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Link, error) {
	l, err := s.links.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("getting link: %w", err)
	}
	return l, nil
}

// ListByProject returns all links in a project, including inactive ones.
func (s *Service) ListByProject(ctx context.Context, tenantID, projectID string) ([]Link, error) {
	return s.links.ListByProject(ctx, tenantID, projectID)
}

// Update modifies a link's type, condition, action, or active flag.
func (s *Service) Update(ctx context.Context, tenantID string, req UpdateRequest) (*Link, error) {
	if req.ID == "" {
		return nil, ErrInvalidInput
	}

	current, err := s.Get(ctx, tenantID, req.ID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if req.Type != nil {
		updated.Type = *req.Type
	}
	if req.Condition != nil {
		updated.Condition = req.Condition
	}
	if req.Action != nil {
		updated.Action = *req.Action
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	if updated.Type == TypeAdvanceTogether {
		updated.Condition = nil
	}
	updated.UpdatedAt = time.Now()

	if err := updated.ValidateShape(); err != nil {
		return nil, err
	}

	if err := s.links.Update(ctx, tenantID, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("updating link: %w", err)
	}

	return &updated, nil
}

// SetActive toggles a link without deleting it.
func (s *Service) SetActive(ctx context.Context, tenantID, id string, active bool) (*Link, error) {
	return s.Update(ctx, tenantID, UpdateRequest{ID: id, IsActive: &active})
}

// Delete removes a link permanently.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.links.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLinkNotFound
		}
		return fmt.Errorf("deleting link: %w", err)
	}
	return nil
}
