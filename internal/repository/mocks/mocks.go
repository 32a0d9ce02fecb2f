package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/domain/project"
	"github.com/stretchr/testify/mock"
)

// ProjectRepository is a mock for project.Repository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, tenantID string, proj *project.Project) error {
	args := m.Called(ctx, tenantID, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	args := m.Called(ctx, tenantID, id)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) List(ctx context.Context, tenantID string) ([]project.ProjectSummary, error) {
	args := m.Called(ctx, tenantID)
	if list, ok := args.Get(0).([]project.ProjectSummary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) Update(ctx context.Context, tenantID string, proj *project.Project) error {
	args := m.Called(ctx, tenantID, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *ProjectRepository) Exists(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// CounterRepository is a mock for counter.Repository.
type CounterRepository struct {
	mock.Mock
}

func (m *CounterRepository) Create(ctx context.Context, tenantID string, c *counter.Counter) error {
	args := m.Called(ctx, tenantID, c)
	return args.Error(0)
}

func (m *CounterRepository) Get(ctx context.Context, tenantID, id string) (*counter.Counter, error) {
	args := m.Called(ctx, tenantID, id)
	if c, ok := args.Get(0).(*counter.Counter); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CounterRepository) ListByProject(ctx context.Context, tenantID, projectID string) ([]counter.Counter, error) {
	args := m.Called(ctx, tenantID, projectID)
	if list, ok := args.Get(0).([]counter.Counter); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CounterRepository) Update(ctx context.Context, tenantID string, c *counter.Counter) error {
	args := m.Called(ctx, tenantID, c)
	return args.Error(0)
}

func (m *CounterRepository) UpdateValue(ctx context.Context, tenantID, id string, oldValue, newValue, clicks int64, updatedAt time.Time) error {
	args := m.Called(ctx, tenantID, id, oldValue, newValue, clicks, updatedAt)
	return args.Error(0)
}

func (m *CounterRepository) UpdateSortOrder(ctx context.Context, tenantID, id string, sortOrder int) error {
	args := m.Called(ctx, tenantID, id, sortOrder)
	return args.Error(0)
}

func (m *CounterRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// LinkRepository is a mock covering link.Repository and the narrower link
// reads the counter service needs.
type LinkRepository struct {
	mock.Mock
}

func (m *LinkRepository) Create(ctx context.Context, tenantID string, l *link.Link) error {
	args := m.Called(ctx, tenantID, l)
	return args.Error(0)
}

func (m *LinkRepository) Get(ctx context.Context, tenantID, id string) (*link.Link, error) {
	args := m.Called(ctx, tenantID, id)
	if l, ok := args.Get(0).(*link.Link); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LinkRepository) ListByProject(ctx context.Context, tenantID, projectID string) ([]link.Link, error) {
	args := m.Called(ctx, tenantID, projectID)
	if list, ok := args.Get(0).([]link.Link); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LinkRepository) ListActiveFrom(ctx context.Context, tenantID, sourceCounterID string) ([]link.Link, error) {
	args := m.Called(ctx, tenantID, sourceCounterID)
	if list, ok := args.Get(0).([]link.Link); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LinkRepository) Update(ctx context.Context, tenantID string, l *link.Link) error {
	args := m.Called(ctx, tenantID, l)
	return args.Error(0)
}

func (m *LinkRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *LinkRepository) ExistsForPair(ctx context.Context, tenantID, sourceCounterID, targetCounterID string) (bool, error) {
	args := m.Called(ctx, tenantID, sourceCounterID, targetCounterID)
	return args.Bool(0), args.Error(1)
}

func (m *LinkRepository) CountActiveForCounter(ctx context.Context, tenantID, counterID string) (int, error) {
	args := m.Called(ctx, tenantID, counterID)
	return args.Int(0), args.Error(1)
}

// CounterDirectory is a mock for link.CounterDirectory.
type CounterDirectory struct {
	mock.Mock
}

func (m *CounterDirectory) CounterProject(ctx context.Context, tenantID, counterID string) (string, error) {
	args := m.Called(ctx, tenantID, counterID)
	return args.String(0), args.Error(1)
}

// HistoryRepository is a mock for the ledger's read side.
type HistoryRepository struct {
	mock.Mock
}

func (m *HistoryRepository) Get(ctx context.Context, tenantID string, id int64) (*history.Entry, error) {
	args := m.Called(ctx, tenantID, id)
	if e, ok := args.Get(0).(*history.Entry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *HistoryRepository) ListForCounter(ctx context.Context, tenantID, counterID string, opts history.ListOptions) ([]history.Entry, error) {
	args := m.Called(ctx, tenantID, counterID, opts)
	if list, ok := args.Get(0).([]history.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *HistoryRepository) ListForProject(ctx context.Context, tenantID, projectID string, opts history.ListOptions) ([]history.Entry, error) {
	args := m.Called(ctx, tenantID, projectID, opts)
	if list, ok := args.Get(0).([]history.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Committer is a mock for history.Committer.
type Committer struct {
	mock.Mock
}

func (m *Committer) CommitUndo(ctx context.Context, tenantID string, target *history.Entry, note *string) (*history.UndoResult, error) {
	args := m.Called(ctx, tenantID, target, note)
	if r, ok := args.Get(0).(*history.UndoResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// Ledger is an in-memory append sink assigning sequential entry ids, for
// exercising commit paths without a database.
type Ledger struct {
	mu      sync.Mutex
	nextID  int64
	Entries []history.Entry
}

func (l *Ledger) Append(ctx context.Context, tenantID string, e *history.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	e.ID = l.nextID
	l.Entries = append(l.Entries, *e)
	return nil
}

// PublishedBatch is one captured Publish call.
type PublishedBatch struct {
	ProjectID string
	Events    []broadcast.Event
}

// Publisher captures published change sets for assertions.
type Publisher struct {
	mu      sync.Mutex
	Batches []PublishedBatch
}

func (p *Publisher) Publish(projectID string, events []broadcast.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Batches = append(p.Batches, PublishedBatch{ProjectID: projectID, Events: events})
}

// Tx binds mocks as the transaction-bound repositories of one unit of work.
type Tx struct {
	CounterRepo counter.Repository
	LinkRepo    counter.LinkRepository
	HistoryRepo counter.HistoryRepository
}

func (t Tx) Counters() counter.Repository {
	return t.CounterRepo
}

func (t Tx) Links() counter.LinkRepository {
	return t.LinkRepo
}

func (t Tx) History() counter.HistoryRepository {
	return t.HistoryRepo
}

// UnitOfWork runs fn against a fake transaction. Err short-circuits in place
// of a begin failure.
type UnitOfWork struct {
	Fake Tx
	Err  error
}

func (u *UnitOfWork) InTx(ctx context.Context, fn func(tx counter.Tx) error) error {
	if u.Err != nil {
		return u.Err
	}
	return fn(u.Fake)
}
