package link_test

import (
	"context"
	"testing"

	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/repository"
	"github.com/knitgrid/tally/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLinkService_Register(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	linksRepo := &mocks.LinkRepository{}
	dir := &mocks.CounterDirectory{}

	dir.On("CounterProject", ctx, tenantID, "row").Return("proj1", nil)
	dir.On("CounterProject", ctx, tenantID, "cable").Return("proj1", nil)
	linksRepo.On("ExistsForPair", ctx, tenantID, "row", "cable").Return(false, nil)
	linksRepo.On("Create", ctx, tenantID, mock.Anything).Return(nil)

	svc := link.NewService(linksRepo, dir, nil)
	l, err := svc.Register(ctx, tenantID, link.RegisterRequest{
		ProjectID:       "proj1",
		SourceCounterID: "row",
		TargetCounterID: "cable",
		Type:            link.TypeResetOnTarget,
		Condition:       &link.Condition{Operator: link.OpEquals, Value: 8},
		Action:          link.Action{Type: link.ActionReset, Value: i64(1)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, l.ID)
	require.True(t, l.IsActive)
	require.Equal(t, "proj1", l.ProjectID)
}

func TestLinkService_Register_SelfLink(t *testing.T) {
	ctx := context.Background()

	svc := link.NewService(&mocks.LinkRepository{}, &mocks.CounterDirectory{}, nil)
	_, err := svc.Register(ctx, "tenant1", link.RegisterRequest{
		ProjectID:       "proj1",
		SourceCounterID: "row",
		TargetCounterID: "row",
		Type:            link.TypeAdvanceTogether,
		Action:          link.Action{Type: link.ActionIncrement},
	})
	require.ErrorIs(t, err, link.ErrSelfLink)
}

func TestLinkService_Register_CrossProject(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	dir := &mocks.CounterDirectory{}
	dir.On("CounterProject", ctx, tenantID, "row").Return("proj1", nil)
	dir.On("CounterProject", ctx, tenantID, "stranger").Return("proj2", nil)

	svc := link.NewService(&mocks.LinkRepository{}, dir, nil)
	_, err := svc.Register(ctx, tenantID, link.RegisterRequest{
		ProjectID:       "proj1",
		SourceCounterID: "row",
		TargetCounterID: "stranger",
		Type:            link.TypeAdvanceTogether,
		Action:          link.Action{Type: link.ActionIncrement},
	})
	require.ErrorIs(t, err, link.ErrCrossProject)
}

func TestLinkService_Register_CounterMissing(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	dir := &mocks.CounterDirectory{}
	dir.On("CounterProject", ctx, tenantID, "ghost").Return("", repository.ErrNotFound)

	svc := link.NewService(&mocks.LinkRepository{}, dir, nil)
	_, err := svc.Register(ctx, tenantID, link.RegisterRequest{
		ProjectID:       "proj1",
		SourceCounterID: "ghost",
		TargetCounterID: "cable",
		Type:            link.TypeAdvanceTogether,
		Action:          link.Action{Type: link.ActionIncrement},
	})
	require.ErrorIs(t, err, link.ErrCounterNotFound)
}

func TestLinkService_Register_DuplicatePair(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	linksRepo := &mocks.LinkRepository{}
	dir := &mocks.CounterDirectory{}

	dir.On("CounterProject", ctx, tenantID, "row").Return("proj1", nil)
	dir.On("CounterProject", ctx, tenantID, "cable").Return("proj1", nil)
	linksRepo.On("ExistsForPair", ctx, tenantID, "row", "cable").Return(true, nil)

	svc := link.NewService(linksRepo, dir, nil)
	_, err := svc.Register(ctx, tenantID, link.RegisterRequest{
		ProjectID:       "proj1",
		SourceCounterID: "row",
		TargetCounterID: "cable",
		Type:            link.TypeAdvanceTogether,
		Action:          link.Action{Type: link.ActionIncrement},
	})
	require.ErrorIs(t, err, link.ErrDuplicateLink)
}

func TestLinkService_Register_InvalidShape(t *testing.T) {
	ctx := context.Background()

	svc := link.NewService(&mocks.LinkRepository{}, &mocks.CounterDirectory{}, nil)
	_, err := svc.Register(ctx, "tenant1", link.RegisterRequest{
		ProjectID:       "proj1",
		SourceCounterID: "row",
		TargetCounterID: "cable",
		Type:            link.TypeResetOnTarget,
		Action:          link.Action{Type: link.ActionReset, Value: i64(1)},
	})
	require.ErrorIs(t, err, link.ErrInvalidInput)
}

func TestLinkService_Update_SwitchToAdvanceTogether(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	linksRepo := &mocks.LinkRepository{}
	linksRepo.On("Get", ctx, tenantID, "l1").Return(&link.Link{
		ID: "l1", TenantID: tenantID, ProjectID: "proj1",
		SourceCounterID: "row", TargetCounterID: "cable",
		Type:      link.TypeConditional,
		Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
		Action:    link.Action{Type: link.ActionIncrement},
		IsActive:  true,
	}, nil)
	linksRepo.On("Update", ctx, tenantID, mock.Anything).Return(nil)

	newType := link.TypeAdvanceTogether
	svc := link.NewService(linksRepo, &mocks.CounterDirectory{}, nil)
	updated, err := svc.Update(ctx, tenantID, link.UpdateRequest{ID: "l1", Type: &newType})
	require.NoError(t, err)
	require.Equal(t, link.TypeAdvanceTogether, updated.Type)
	// The stale condition is dropped with the type switch.
	require.Nil(t, updated.Condition)
}

func TestLinkService_SetActive(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	linksRepo := &mocks.LinkRepository{}
	linksRepo.On("Get", ctx, tenantID, "l1").Return(&link.Link{
		ID: "l1", TenantID: tenantID, ProjectID: "proj1",
		SourceCounterID: "row", TargetCounterID: "cable",
		Type:   link.TypeAdvanceTogether,
		Action: link.Action{Type: link.ActionIncrement},
		IsActive: true,
	}, nil)
	linksRepo.On("Update", ctx, tenantID, mock.Anything).Return(nil)

	svc := link.NewService(linksRepo, &mocks.CounterDirectory{}, nil)
	updated, err := svc.SetActive(ctx, tenantID, "l1", false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestLinkService_Get_NotFound(t *testing.T) {
	ctx := context.Background()

	linksRepo := &mocks.LinkRepository{}
	linksRepo.On("Get", ctx, "tenant1", "missing").Return((*link.Link)(nil), repository.ErrNotFound)

	svc := link.NewService(linksRepo, &mocks.CounterDirectory{}, nil)
	_, err := svc.Get(ctx, "tenant1", "missing")
	require.ErrorIs(t, err, link.ErrLinkNotFound)
}
