package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Change is one committed value transition inside a root update: the root
// mutation itself or a cascaded link action. EntryID is the history entry
// recorded for the transition; LinkID is set for cascaded changes.
type Change struct {
	CounterID string  `json:"counter_id"`
	OldValue  int64   `json:"old_value"`
	NewValue  int64   `json:"new_value"`
	Action    string  `json:"action"`
	EntryID   int64   `json:"entry_id"`
	LinkID    *string `json:"link_id,omitempty"`
}

// SkipReason classifies why a fired edge was not applied.
type SkipReason string

const (
	// SkipCycleGuard means the target was already triggered in this root update.
	SkipCycleGuard SkipReason = "cycle_guard"
	// SkipBounds means the action would have left the target out of bounds.
	SkipBounds SkipReason = "bounds"
	// SkipInactive means the target counter is soft-disabled.
	SkipInactive SkipReason = "inactive"
)

// Skip records a fired edge whose action was not applied.
type Skip struct {
	LinkID          string     `json:"link_id"`
	SourceCounterID string     `json:"source_counter_id"`
	TargetCounterID string     `json:"target_counter_id"`
	Reason          SkipReason `json:"reason"`
}

// Result is the outcome of one root update: every committed change in
// execution order, root first, plus the edges that fired but were skipped.
type Result struct {
	Changes []Change `json:"changes"`
	Skips   []Skip   `json:"skips,omitempty"`
}

// Cascader walks the link graph depth-first from a committed root change,
// applying fired actions through the Applier. A visited set of triggered
// counter ids guarantees termination on cyclic graphs: no counter is
// auto-triggered more than once per root update, and an edge that would
// revisit one is skipped and recorded instead of re-applied.
type Cascader struct {
	logger *slog.Logger
}

// NewCascader creates a cascade runner.
func NewCascader(logger *slog.Logger) *Cascader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascader{logger: logger}
}

// Run executes the cascade for a committed root change. The returned result
// always contains the root as its first change. Skipped edges never fail the
// run; any other applier or source failure aborts it so the enclosing
// transaction can roll back.
func (c *Cascader) Run(ctx context.Context, src Source, apply Applier, root Change) (*Result, error) {
	res := &Result{Changes: []Change{root}}
	visited := map[string]struct{}{root.CounterID: {}}

	if err := c.walk(ctx, src, apply, root, visited, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Cascader) walk(ctx context.Context, src Source, apply Applier, from Change, visited map[string]struct{}, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	links, err := src.ActiveFrom(ctx, from.CounterID)
	if err != nil {
		return fmt.Errorf("loading outgoing links for %s: %w", from.CounterID, err)
	}

	for i := range links {
		l := links[i]
		if !l.Fires(from.NewValue) {
			continue
		}

		if _, triggered := visited[l.TargetCounterID]; triggered {
			res.Skips = append(res.Skips, Skip{
				LinkID:          l.ID,
				SourceCounterID: l.SourceCounterID,
				TargetCounterID: l.TargetCounterID,
				Reason:          SkipCycleGuard,
			})
			c.logger.Warn("cascade cycle guard tripped",
				"link_id", l.ID,
				"source_counter_id", l.SourceCounterID,
				"target_counter_id", l.TargetCounterID,
			)
			continue
		}

		change, err := apply.Apply(ctx, l)
		if err != nil {
			reason, skippable := skipReasonFor(err)
			if !skippable {
				return fmt.Errorf("applying link %s: %w", l.ID, err)
			}
			res.Skips = append(res.Skips, Skip{
				LinkID:          l.ID,
				SourceCounterID: l.SourceCounterID,
				TargetCounterID: l.TargetCounterID,
				Reason:          reason,
			})
			c.logger.Info("cascade edge skipped",
				"link_id", l.ID,
				"target_counter_id", l.TargetCounterID,
				"reason", reason,
			)
			continue
		}

		visited[l.TargetCounterID] = struct{}{}

		// A nil change means the action only advanced the target's
		// invocation tally; there is no committed value to fan out from.
		if change == nil {
			continue
		}

		res.Changes = append(res.Changes, *change)
		if err := c.walk(ctx, src, apply, *change, visited, res); err != nil {
			return err
		}
	}

	return nil
}

func skipReasonFor(err error) (SkipReason, bool) {
	switch {
	case errors.Is(err, ErrTargetOutOfBounds):
		return SkipBounds, true
	case errors.Is(err, ErrTargetInactive):
		return SkipInactive, true
	default:
		return "", false
	}
}
