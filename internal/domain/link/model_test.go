package link_test

import (
	"testing"

	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func TestLinkFires(t *testing.T) {
	l := link.Link{
		Type:      link.TypeResetOnTarget,
		Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
		Action:    link.Action{Type: link.ActionReset, Value: i64(1)},
		IsActive:  true,
	}

	require.True(t, l.Fires(8))
	require.False(t, l.Fires(7))
	// The trigger matches the exact committed value; passing it later does
	// not re-fire the link.
	require.False(t, l.Fires(9))

	l.Condition.Operator = link.OpGreaterThan
	require.True(t, l.Fires(9))
	require.False(t, l.Fires(8))

	l.Condition.Operator = link.OpLessThan
	require.True(t, l.Fires(7))
	require.False(t, l.Fires(8))

	l.IsActive = false
	require.False(t, l.Fires(7))
}

func TestLinkFires_AdvanceTogether(t *testing.T) {
	l := link.Link{
		Type:     link.TypeAdvanceTogether,
		Action:   link.Action{Type: link.ActionIncrement},
		IsActive: true,
	}
	require.True(t, l.Fires(0))
	require.True(t, l.Fires(-3))
	require.True(t, l.Fires(1000))
}

func TestLinkFires_NoCondition(t *testing.T) {
	l := link.Link{
		Type:     link.TypeConditional,
		Action:   link.Action{Type: link.ActionIncrement},
		IsActive: true,
	}
	require.False(t, l.Fires(8))
}

func TestLinkValidateShape(t *testing.T) {
	valid := []link.Link{
		{
			Type:      link.TypeResetOnTarget,
			Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
			Action:    link.Action{Type: link.ActionReset, Value: i64(1)},
		},
		{
			Type:      link.TypeConditional,
			Condition: &link.Condition{Operator: link.OpGreaterThan, Value: 10},
			Action:    link.Action{Type: link.ActionSet, Value: i64(0)},
		},
		{
			Type:      link.TypeConditional,
			Condition: &link.Condition{Operator: link.OpLessThan, Value: 0},
			Action:    link.Action{Type: link.ActionIncrement},
		},
		{
			Type:   link.TypeAdvanceTogether,
			Action: link.Action{Type: link.ActionIncrement},
		},
	}
	for i, l := range valid {
		require.NoError(t, l.ValidateShape(), "link %d should be valid", i)
	}

	invalid := []link.Link{
		{},
		{Type: "follows"},
		// reset_on_target needs both a condition and a reset action.
		{Type: link.TypeResetOnTarget, Action: link.Action{Type: link.ActionReset, Value: i64(1)}},
		{
			Type:      link.TypeResetOnTarget,
			Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
			Action:    link.Action{Type: link.ActionSet, Value: i64(1)},
		},
		// conditional needs a condition.
		{Type: link.TypeConditional, Action: link.Action{Type: link.ActionIncrement}},
		// advance_together carries neither a condition nor a non-increment action.
		{
			Type:      link.TypeAdvanceTogether,
			Condition: &link.Condition{Operator: link.OpEquals, Value: 1},
			Action:    link.Action{Type: link.ActionIncrement},
		},
		{Type: link.TypeAdvanceTogether, Action: link.Action{Type: link.ActionReset, Value: i64(0)}},
		// reset and set require an action value.
		{
			Type:      link.TypeConditional,
			Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
			Action:    link.Action{Type: link.ActionReset},
		},
		{
			Type:      link.TypeConditional,
			Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
			Action:    link.Action{Type: link.ActionSet},
		},
		// unknown operator and action type.
		{
			Type:      link.TypeConditional,
			Condition: &link.Condition{Operator: "between", Value: 8},
			Action:    link.Action{Type: link.ActionIncrement},
		},
		{
			Type:      link.TypeConditional,
			Condition: &link.Condition{Operator: link.OpEquals, Value: 8},
			Action:    link.Action{Type: "double"},
		},
	}
	for i, l := range invalid {
		require.ErrorIs(t, l.ValidateShape(), link.ErrInvalidInput, "link %d should be rejected", i)
	}
}
