package link_test

import (
	"context"
	"errors"
	"testing"

	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/stretchr/testify/require"
)

// stubSource serves a fixed adjacency list.
type stubSource map[string][]link.Link

func (s stubSource) ActiveFrom(ctx context.Context, counterID string) ([]link.Link, error) {
	return s[counterID], nil
}

// stubApplier applies actions against an in-memory value table, handing out
// sequential entry ids like the ledger would.
type stubApplier struct {
	values    map[string]int64
	maxima    map[string]int64
	inactive  map[string]bool
	failLinks map[string]error
	nextEntry int64
}

func newStubApplier(values map[string]int64) *stubApplier {
	return &stubApplier{
		values:    values,
		maxima:    map[string]int64{},
		inactive:  map[string]bool{},
		failLinks: map[string]error{},
	}
}

func (a *stubApplier) Apply(ctx context.Context, l link.Link) (*link.Change, error) {
	if err := a.failLinks[l.ID]; err != nil {
		return nil, err
	}
	if a.inactive[l.TargetCounterID] {
		return nil, link.ErrTargetInactive
	}

	old := a.values[l.TargetCounterID]
	var next int64
	switch l.Action.Type {
	case link.ActionReset, link.ActionSet:
		next = *l.Action.Value
	default:
		step := int64(1)
		if l.Action.Value != nil {
			step = *l.Action.Value
		}
		next = old + step
	}

	if max, bounded := a.maxima[l.TargetCounterID]; bounded && next > max {
		return nil, link.ErrTargetOutOfBounds
	}

	a.values[l.TargetCounterID] = next
	a.nextEntry++
	linkID := l.ID
	return &link.Change{
		CounterID: l.TargetCounterID,
		OldValue:  old,
		NewValue:  next,
		Action:    string(l.Action.Type),
		EntryID:   a.nextEntry,
		LinkID:    &linkID,
	}, nil
}

func resetLink(id, source, target string, at, to int64) link.Link {
	return link.Link{
		ID:              id,
		SourceCounterID: source,
		TargetCounterID: target,
		Type:            link.TypeResetOnTarget,
		Condition:       &link.Condition{Operator: link.OpEquals, Value: at},
		Action:          link.Action{Type: link.ActionReset, Value: i64(to)},
		IsActive:        true,
	}
}

func followLink(id, source, target string) link.Link {
	return link.Link{
		ID:              id,
		SourceCounterID: source,
		TargetCounterID: target,
		Type:            link.TypeAdvanceTogether,
		Action:          link.Action{Type: link.ActionIncrement, Value: i64(1)},
		IsActive:        true,
	}
}

func TestCascade_RootOnly(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	root := link.Change{CounterID: "row", OldValue: 7, NewValue: 8, Action: "increment", EntryID: 1}
	res, err := c.Run(ctx, stubSource{}, newStubApplier(map[string]int64{}), root)
	require.NoError(t, err)
	require.Equal(t, []link.Change{root}, res.Changes)
	require.Empty(t, res.Skips)
}

func TestCascade_FiresOnMatch(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	src := stubSource{"row": {resetLink("l1", "row", "cable", 8, 1)}}

	// Hitting the trigger value resets the target in the same run.
	apply := newStubApplier(map[string]int64{"cable": 5})
	res, err := c.Run(ctx, src, apply, link.Change{CounterID: "row", OldValue: 7, NewValue: 8, EntryID: 1})
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)
	require.Equal(t, "cable", res.Changes[1].CounterID)
	require.Equal(t, int64(1), res.Changes[1].NewValue)
	require.Equal(t, int64(1), apply.values["cable"])

	// Passing the trigger on the next update does not re-fire it.
	apply = newStubApplier(map[string]int64{"cable": 1})
	res, err = c.Run(ctx, src, apply, link.Change{CounterID: "row", OldValue: 8, NewValue: 9, EntryID: 2})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.Equal(t, int64(1), apply.values["cable"])
}

func TestCascade_ChainPropagates(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	// row hits 8 -> pattern resets to 1 -> section advances.
	src := stubSource{
		"row":     {resetLink("l1", "row", "pattern", 8, 1)},
		"pattern": {followLink("l2", "pattern", "section")},
	}
	apply := newStubApplier(map[string]int64{"pattern": 6, "section": 2})

	res, err := c.Run(ctx, src, apply, link.Change{CounterID: "row", OldValue: 7, NewValue: 8, EntryID: 1})
	require.NoError(t, err)
	require.Len(t, res.Changes, 3)
	require.Equal(t, "pattern", res.Changes[1].CounterID)
	require.Equal(t, "section", res.Changes[2].CounterID)
	require.Equal(t, int64(3), apply.values["section"])
	require.Empty(t, res.Skips)
}

func TestCascade_CycleTerminates(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	// a -> b -> c -> a, all unconditional. The revisit of a is skipped and
	// every counter moves at most once.
	src := stubSource{
		"a": {followLink("l1", "a", "b")},
		"b": {followLink("l2", "b", "c")},
		"c": {followLink("l3", "c", "a")},
	}
	apply := newStubApplier(map[string]int64{"a": 1, "b": 1, "c": 1})

	res, err := c.Run(ctx, src, apply, link.Change{CounterID: "a", OldValue: 0, NewValue: 1, EntryID: 1})
	require.NoError(t, err)
	require.Len(t, res.Changes, 3)
	require.Len(t, res.Skips, 1)
	require.Equal(t, "l3", res.Skips[0].LinkID)
	require.Equal(t, link.SkipCycleGuard, res.Skips[0].Reason)
	require.Equal(t, int64(2), apply.values["b"])
	require.Equal(t, int64(2), apply.values["c"])
	// The root's own value is whatever the commit set it to; the looping
	// edge must not touch it again.
	require.Equal(t, int64(1), apply.values["a"])
}

func TestCascade_SelfLoopSkipped(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	src := stubSource{"a": {followLink("l1", "a", "a")}}
	apply := newStubApplier(map[string]int64{"a": 1})

	res, err := c.Run(ctx, src, apply, link.Change{CounterID: "a", OldValue: 0, NewValue: 1, EntryID: 1})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.Len(t, res.Skips, 1)
	require.Equal(t, link.SkipCycleGuard, res.Skips[0].Reason)
}

func TestCascade_SkipsRecorded(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	src := stubSource{"row": {
		followLink("l1", "row", "capped"),
		followLink("l2", "row", "sleeping"),
		followLink("l3", "row", "fine"),
	}}
	apply := newStubApplier(map[string]int64{"capped": 10, "fine": 0})
	apply.maxima["capped"] = 10
	apply.inactive["sleeping"] = true

	res, err := c.Run(ctx, src, apply, link.Change{CounterID: "row", OldValue: 0, NewValue: 1, EntryID: 1})
	require.NoError(t, err)

	// Skipped edges never break the rest of the fan-out.
	require.Len(t, res.Changes, 2)
	require.Equal(t, "fine", res.Changes[1].CounterID)
	require.Len(t, res.Skips, 2)
	require.Equal(t, link.SkipBounds, res.Skips[0].Reason)
	require.Equal(t, link.SkipInactive, res.Skips[1].Reason)
	require.Equal(t, int64(10), apply.values["capped"])
}

func TestCascade_ApplierFailureAborts(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	src := stubSource{"row": {followLink("l1", "row", "other")}}
	apply := newStubApplier(map[string]int64{"other": 0})
	boom := errors.New("disk gone")
	apply.failLinks["l1"] = boom

	_, err := c.Run(ctx, src, apply, link.Change{CounterID: "row", OldValue: 0, NewValue: 1, EntryID: 1})
	require.ErrorIs(t, err, boom)
}

func TestCascade_TallyOnlyTargetStopsBranch(t *testing.T) {
	ctx := context.Background()
	c := link.NewCascader(nil)

	// An applier may report no committed change when the target's pattern
	// swallowed the invocation; the branch ends there.
	src := stubSource{
		"row":    {followLink("l1", "row", "silent")},
		"silent": {followLink("l2", "silent", "beyond")},
	}
	apply := &tallyOnlyApplier{}

	res, err := c.Run(ctx, src, apply, link.Change{CounterID: "row", OldValue: 0, NewValue: 1, EntryID: 1})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.Empty(t, res.Skips)
	require.Equal(t, []string{"l1"}, apply.seen)
}

type tallyOnlyApplier struct {
	seen []string
}

func (a *tallyOnlyApplier) Apply(ctx context.Context, l link.Link) (*link.Change, error) {
	a.seen = append(a.seen, l.ID)
	return nil, nil
}
