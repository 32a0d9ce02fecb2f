package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/repository"
	"github.com/google/uuid"
)

// Service owns counter records and the value commit path. Every value
// mutation, user-issued or cascaded, goes through one unit of work under the
// project's lock: the new value, its ledger entry, and the full cascade
// commit together, then the change set is published.
type Service struct {
	counters  Repository
	links     LinkRepository
	projects  ProjectRepository
	uow       UnitOfWork
	cascades  *link.Cascader
	publisher Publisher
	locks     *projectLocks
	logger    *slog.Logger
}

// NewService creates a new counter service.
func NewService(
	counters Repository,
	links LinkRepository,
	projects ProjectRepository,
	uow UnitOfWork,
	publisher Publisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		counters:  counters,
		links:     links,
		projects:  projects,
		uow:       uow,
		cascades:  link.NewCascader(logger),
		publisher: publisher,
		locks:     newProjectLocks(),
		logger:    logger,
	}
}

// CreateRequest describes a counter creation.
type CreateRequest struct {
	ProjectID    string
	ParentID     *string
	Name         string
	InitialValue *int64
	MinValue     *int64
	MaxValue     *int64
	IncrementBy  int64
	Pattern      *Pattern
	DisplayColor string
	IsVisible    *bool
	SortOrder    int
	DeviceID     string
}

// UpdateRequest describes a value operation. Value is required for set,
// optional for reset, and must be absent for increment and decrement, which
// step by the counter's own pattern.
type UpdateRequest struct {
	CounterID string
	Op        Op
	Value     *int64
	Note      *string
	DeviceID  string
}

// UpdateSpecRequest describes edits to a counter's definition. Clear flags
// remove the corresponding optional field.
type UpdateSpecRequest struct {
	CounterID    string
	Name         *string
	DisplayColor *string
	ParentID     *string
	ClearParent  bool
	MinValue     *int64
	ClearMin     bool
	MaxValue     *int64
	ClearMax     bool
	IncrementBy  *int64
	Pattern      *Pattern
}

// UpdateResult is the outcome of one committed value operation: the updated
// counter plus every change the root update produced, root first, and any
// cascade edges that fired but were skipped. Changes is empty when a
// stateful pattern swallowed the invocation.
type UpdateResult struct {
	Counter *Counter      `json:"counter"`
	Changes []link.Change `json:"changes,omitempty"`
	Skips   []link.Skip   `json:"skips,omitempty"`
}

// Create validates and persists a new counter together with its initial
// ledger entry.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest) (*Counter, error) {
	if req.IncrementBy == 0 {
		req.IncrementBy = 1
	}

	now := time.Now()
	c := &Counter{
		ID:           uuid.Must(uuid.NewV7()).String(),
		TenantID:     tenantID,
		ProjectID:    req.ProjectID,
		ParentID:     req.ParentID,
		Name:         req.Name,
		MinValue:     req.MinValue,
		MaxValue:     req.MaxValue,
		IncrementBy:  req.IncrementBy,
		Pattern:      SimplePattern(),
		DisplayColor: req.DisplayColor,
		IsVisible:    true,
		SortOrder:    req.SortOrder,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.InitialValue != nil {
		c.CurrentValue = *req.InitialValue
	}
	if req.Pattern != nil {
		c.Pattern = *req.Pattern
	}
	if req.IsVisible != nil {
		c.IsVisible = *req.IsVisible
	}

	if err := ValidateSpec(c); err != nil {
		return nil, err
	}

	if err := s.projects.Exists(ctx, tenantID, req.ProjectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("checking project: %w", err)
	}

	if req.ParentID != nil {
		parent, err := s.Get(ctx, tenantID, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ProjectID != req.ProjectID {
			return nil, ErrInvalidInput
		}
	}

	var entry *history.Entry
	err := s.uow.InTx(ctx, func(tx Tx) error {
		if err := tx.Counters().Create(ctx, tenantID, c); err != nil {
			return fmt.Errorf("creating counter: %w", err)
		}
		entry = &history.Entry{
			TenantID:  tenantID,
			ProjectID: c.ProjectID,
			CounterID: c.ID,
			OldValue:  0,
			NewValue:  c.CurrentValue,
			Action:    history.ActionCreated,
			CreatedAt: now,
		}
		if err := tx.History().Append(ctx, tenantID, entry); err != nil {
			return fmt.Errorf("recording creation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("counter created",
		"counter_id", c.ID,
		"project_id", c.ProjectID,
		"name", c.Name,
	)

	s.publish(c.ProjectID, req.DeviceID, now, []link.Change{{
		CounterID: c.ID,
		OldValue:  0,
		NewValue:  c.CurrentValue,
		Action:    string(history.ActionCreated),
		EntryID:   entry.ID,
	}})

	return c, nil
}

// Get returns a counter by ID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Counter, error) {
	c, err := s.counters.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCounterNotFound
		}
		return nil, fmt.Errorf("getting counter: %w", err)
	}
	return c, nil
}

// ListByProject returns a project's counters ordered by sort position.
func (s *Service) ListByProject(ctx context.Context, tenantID, projectID string) ([]Counter, error) {
	return s.counters.ListByProject(ctx, tenantID, projectID)
}

// UpdateValue applies a value operation and its cascade as one atomic unit.
// Out-of-bounds candidates reject the whole operation with ErrBoundsExceeded
// and leave the counter untouched. The committed change set is published to
// project subscribers after the transaction lands.
func (s *Service) UpdateValue(ctx context.Context, tenantID string, req UpdateRequest) (*UpdateResult, error) {
	if err := validateUpdateRequest(req); err != nil {
		return nil, err
	}

	scope, err := s.Get(ctx, tenantID, req.CounterID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(scope.ProjectID)
	defer unlock.Unlock()

	now := time.Now()
	var result *UpdateResult
	var committed []link.Change

	err = s.uow.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Counters().Get(ctx, tenantID, req.CounterID)
		if err != nil {
			return mapNotFound(err)
		}
		if !cur.IsActive {
			return ErrCounterInactive
		}

		old := cur.CurrentValue
		newValue, newClicks, changed, act := applyOp(cur, req)

		if !changed {
			// The pattern swallowed this invocation; persist the tally only.
			if newClicks != cur.Clicks {
				if err := tx.Counters().UpdateValue(ctx, tenantID, cur.ID, old, old, newClicks, now); err != nil {
					return fmt.Errorf("recording tally: %w", err)
				}
			}
			snap := *cur
			snap.Clicks = newClicks
			snap.UpdatedAt = now
			result = &UpdateResult{Counter: &snap}
			return nil
		}

		if err := cur.CheckBounds(newValue); err != nil {
			return err
		}

		if err := tx.Counters().UpdateValue(ctx, tenantID, cur.ID, old, newValue, newClicks, now); err != nil {
			return fmt.Errorf("committing value: %w", err)
		}

		entry := &history.Entry{
			TenantID:  tenantID,
			ProjectID: cur.ProjectID,
			CounterID: cur.ID,
			OldValue:  old,
			NewValue:  newValue,
			Action:    act,
			UserNote:  req.Note,
			CreatedAt: now,
		}
		if err := tx.History().Append(ctx, tenantID, entry); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}

		root := link.Change{
			CounterID: cur.ID,
			OldValue:  old,
			NewValue:  newValue,
			Action:    string(act),
			EntryID:   entry.ID,
		}
		res, err := s.cascades.Run(ctx,
			txLinkSource{links: tx.Links(), tenantID: tenantID},
			&txApplier{tx: tx, tenantID: tenantID, now: now},
			root,
		)
		if err != nil {
			return fmt.Errorf("running cascade: %w", err)
		}

		snap := *cur
		snap.CurrentValue = newValue
		snap.Clicks = newClicks
		snap.UpdatedAt = now
		result = &UpdateResult{Counter: &snap, Changes: res.Changes, Skips: res.Skips}
		committed = res.Changes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(scope.ProjectID, req.DeviceID, now, committed)
	return result, nil
}

// CommitUndo implements the ledger's undo: it re-applies the target entry's
// old value as a fresh committed mutation and returns the new undo entry
// together with the change set it caused.
func (s *Service) CommitUndo(ctx context.Context, tenantID string, target *history.Entry, note *string) (*history.UndoResult, error) {
	scope, err := s.Get(ctx, tenantID, target.CounterID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(scope.ProjectID)
	defer unlock.Unlock()

	now := time.Now()
	var undo *history.Entry
	var committed []link.Change
	var skips []link.Skip

	err = s.uow.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Counters().Get(ctx, tenantID, target.CounterID)
		if err != nil {
			return mapNotFound(err)
		}
		if !cur.IsActive {
			return ErrCounterInactive
		}
		if err := cur.CheckBounds(target.OldValue); err != nil {
			return err
		}

		old := cur.CurrentValue
		if err := tx.Counters().UpdateValue(ctx, tenantID, cur.ID, old, target.OldValue, cur.Clicks, now); err != nil {
			return fmt.Errorf("committing value: %w", err)
		}

		undo = &history.Entry{
			TenantID:      tenantID,
			ProjectID:     cur.ProjectID,
			CounterID:     cur.ID,
			OldValue:      old,
			NewValue:      target.OldValue,
			Action:        history.ActionUndo,
			UserNote:      note,
			UndoneEntryID: &target.ID,
			CreatedAt:     now,
		}
		if err := tx.History().Append(ctx, tenantID, undo); err != nil {
			return fmt.Errorf("appending undo entry: %w", err)
		}

		root := link.Change{
			CounterID: cur.ID,
			OldValue:  old,
			NewValue:  target.OldValue,
			Action:    string(history.ActionUndo),
			EntryID:   undo.ID,
		}
		res, err := s.cascades.Run(ctx,
			txLinkSource{links: tx.Links(), tenantID: tenantID},
			&txApplier{tx: tx, tenantID: tenantID, now: now},
			root,
		)
		if err != nil {
			return fmt.Errorf("running cascade: %w", err)
		}
		committed = res.Changes
		skips = res.Skips
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Undo publishes without an origin tag: the initiating device did not
	// apply it optimistically, so its own echo must not be dropped.
	s.publish(scope.ProjectID, "", now, committed)
	return &history.UndoResult{Entry: undo, Changes: committed, Skips: skips}, nil
}

// UpdateSpec edits a counter's definition. Value and ledger stay untouched;
// a pattern change resets the click tally. New bounds must keep the current
// value inside them.
func (s *Service) UpdateSpec(ctx context.Context, tenantID string, req UpdateSpecRequest) (*Counter, error) {
	if req.CounterID == "" {
		return nil, ErrInvalidInput
	}

	scope, err := s.Get(ctx, tenantID, req.CounterID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(scope.ProjectID)
	defer unlock.Unlock()

	cur, err := s.Get(ctx, tenantID, req.CounterID)
	if err != nil {
		return nil, err
	}

	updated := *cur
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.DisplayColor != nil {
		updated.DisplayColor = *req.DisplayColor
	}
	if req.IncrementBy != nil {
		updated.IncrementBy = *req.IncrementBy
	}
	if req.Pattern != nil {
		updated.Pattern = *req.Pattern
		updated.Clicks = 0
	}
	if req.ClearMin {
		updated.MinValue = nil
	} else if req.MinValue != nil {
		updated.MinValue = req.MinValue
	}
	if req.ClearMax {
		updated.MaxValue = nil
	} else if req.MaxValue != nil {
		updated.MaxValue = req.MaxValue
	}
	if req.ClearParent {
		updated.ParentID = nil
	} else if req.ParentID != nil {
		if err := s.validateParent(ctx, tenantID, cur, *req.ParentID); err != nil {
			return nil, err
		}
		updated.ParentID = req.ParentID
	}
	updated.UpdatedAt = time.Now()

	if err := ValidateSpec(&updated); err != nil {
		return nil, err
	}

	if err := s.counters.Update(ctx, tenantID, &updated); err != nil {
		return nil, mapNotFound(err)
	}
	return &updated, nil
}

// Reorder rewrites sort positions for a project's counters. The id list must
// be a full permutation of the project's counters.
func (s *Service) Reorder(ctx context.Context, tenantID, projectID string, orderedIDs []string) error {
	unlock := s.locks.acquire(projectID)
	defer unlock.Unlock()

	existing, err := s.counters.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return fmt.Errorf("listing counters: %w", err)
	}
	if len(orderedIDs) != len(existing) {
		return ErrInvalidInput
	}
	known := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		known[c.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := known[id]; !ok {
			return ErrInvalidInput
		}
		if _, dup := seen[id]; dup {
			return ErrInvalidInput
		}
		seen[id] = struct{}{}
	}

	return s.uow.InTx(ctx, func(tx Tx) error {
		for i, id := range orderedIDs {
			if err := tx.Counters().UpdateSortOrder(ctx, tenantID, id, i); err != nil {
				return fmt.Errorf("reordering counter %s: %w", id, err)
			}
		}
		return nil
	})
}

// SetVisibility toggles the display flag only.
func (s *Service) SetVisibility(ctx context.Context, tenantID, id string, visible bool) (*Counter, error) {
	return s.setFlag(ctx, tenantID, id, func(c *Counter) { c.IsVisible = visible })
}

// SetActive soft-disables or re-enables a counter. Inactive counters reject
// value operations and neither fire nor receive cascades.
func (s *Service) SetActive(ctx context.Context, tenantID, id string, active bool) (*Counter, error) {
	return s.setFlag(ctx, tenantID, id, func(c *Counter) { c.IsActive = active })
}

// Delete removes a counter with its links and ledger. It is rejected while
// any active link still references the counter from either end.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	scope, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	unlock := s.locks.acquire(scope.ProjectID)
	defer unlock.Unlock()

	n, err := s.links.CountActiveForCounter(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("counting links: %w", err)
	}
	if n > 0 {
		return ErrCounterLinked
	}

	if err := s.counters.Delete(ctx, tenantID, id); err != nil {
		return mapNotFound(err)
	}

	s.logger.Info("counter deleted", "counter_id", id, "project_id", scope.ProjectID)
	return nil
}

func (s *Service) setFlag(ctx context.Context, tenantID, id string, mutate func(*Counter)) (*Counter, error) {
	scope, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(scope.ProjectID)
	defer unlock.Unlock()

	cur, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updated := *cur
	mutate(&updated)
	updated.UpdatedAt = time.Now()

	if err := s.counters.Update(ctx, tenantID, &updated); err != nil {
		return nil, mapNotFound(err)
	}
	return &updated, nil
}

func (s *Service) validateParent(ctx context.Context, tenantID string, c *Counter, parentID string) error {
	if parentID == c.ID {
		return ErrParentCycle
	}

	parent, err := s.Get(ctx, tenantID, parentID)
	if err != nil {
		return err
	}
	if parent.ProjectID != c.ProjectID {
		return ErrInvalidInput
	}

	// Walk up the chain; a revisit means the assignment would loop.
	seen := map[string]struct{}{c.ID: {}}
	next := parentID
	for next != "" {
		if _, dup := seen[next]; dup {
			return ErrParentCycle
		}
		seen[next] = struct{}{}
		p, err := s.Get(ctx, tenantID, next)
		if err != nil {
			return err
		}
		if p.ParentID == nil {
			break
		}
		next = *p.ParentID
	}
	return nil
}

func (s *Service) publish(projectID, origin string, at time.Time, changes []link.Change) {
	if s.publisher == nil || len(changes) == 0 {
		return
	}
	events := make([]broadcast.Event, 0, len(changes))
	for _, ch := range changes {
		events = append(events, broadcast.Event{
			Seq:         ch.EntryID,
			ProjectID:   projectID,
			CounterID:   ch.CounterID,
			OldValue:    ch.OldValue,
			Value:       ch.NewValue,
			Action:      ch.Action,
			TriggeredBy: ch.LinkID,
			Origin:      origin,
			At:          at,
		})
	}
	s.publisher.Publish(projectID, events)
}

func applyOp(c *Counter, req UpdateRequest) (newValue, newClicks int64, changed bool, act history.Action) {
	switch req.Op {
	case OpIncrement:
		newValue, newClicks, changed = c.Advance(1)
		return newValue, newClicks, changed, history.ActionIncrement
	case OpDecrement:
		newValue, newClicks, changed = c.Advance(-1)
		return newValue, newClicks, changed, history.ActionDecrement
	case OpReset:
		return c.ResetValue(req.Value), 0, true, history.ActionReset
	default:
		return *req.Value, c.Clicks, true, history.ActionSet
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCounterNotFound
	}
	return err
}

// txLinkSource adapts the transaction-bound link repository to the cascade
// runner's view.
type txLinkSource struct {
	links    LinkRepository
	tenantID string
}

func (s txLinkSource) ActiveFrom(ctx context.Context, counterID string) ([]link.Link, error) {
	return s.links.ListActiveFrom(ctx, s.tenantID, counterID)
}

// txApplier executes fired link actions against target counters inside the
// root update's transaction.
type txApplier struct {
	tx       Tx
	tenantID string
	now      time.Time
}

func (a *txApplier) Apply(ctx context.Context, l link.Link) (*link.Change, error) {
	target, err := a.tx.Counters().Get(ctx, a.tenantID, l.TargetCounterID)
	if err != nil {
		return nil, fmt.Errorf("loading target %s: %w", l.TargetCounterID, err)
	}
	if !target.IsActive {
		return nil, link.ErrTargetInactive
	}

	old := target.CurrentValue
	var newValue, newClicks int64
	var act history.Action

	switch l.Action.Type {
	case link.ActionReset:
		newValue, newClicks, act = *l.Action.Value, 0, history.ActionReset
	case link.ActionSet:
		newValue, newClicks, act = *l.Action.Value, target.Clicks, history.ActionSet
	default:
		act = history.ActionIncrement
		if l.Action.Value != nil {
			newValue, newClicks = old+*l.Action.Value, target.Clicks
		} else {
			// A cascaded increment without an explicit amount is a normal
			// invocation of the target's own pattern.
			var changed bool
			newValue, newClicks, changed = target.Advance(1)
			if !changed {
				if newClicks != target.Clicks {
					if err := a.tx.Counters().UpdateValue(ctx, a.tenantID, target.ID, old, old, newClicks, a.now); err != nil {
						return nil, fmt.Errorf("recording target tally: %w", err)
					}
				}
				return nil, nil
			}
		}
	}

	if err := target.CheckBounds(newValue); err != nil {
		return nil, link.ErrTargetOutOfBounds
	}

	if err := a.tx.Counters().UpdateValue(ctx, a.tenantID, target.ID, old, newValue, newClicks, a.now); err != nil {
		return nil, fmt.Errorf("committing target value: %w", err)
	}

	linkID := l.ID
	entry := &history.Entry{
		TenantID:    a.tenantID,
		ProjectID:   target.ProjectID,
		CounterID:   target.ID,
		OldValue:    old,
		NewValue:    newValue,
		Action:      act,
		TriggeredBy: &linkID,
		CreatedAt:   a.now,
	}
	if err := a.tx.History().Append(ctx, a.tenantID, entry); err != nil {
		return nil, fmt.Errorf("appending target history: %w", err)
	}

	return &link.Change{
		CounterID: target.ID,
		OldValue:  old,
		NewValue:  newValue,
		Action:    string(act),
		EntryID:   entry.ID,
		LinkID:    &linkID,
	}, nil
}
