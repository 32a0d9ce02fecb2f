package counter_test

import (
	"testing"

	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func TestPatternValidate(t *testing.T) {
	valid := []counter.Pattern{
		{Kind: counter.PatternSimple},
		{Kind: counter.PatternFixed, Step: 2},
		{Kind: counter.PatternFixed, Step: -1},
		{Kind: counter.PatternEveryN, Step: 1, Every: 3},
		{Kind: counter.PatternRepeat, Steps: []int64{2, 2, 3}},
	}
	for _, p := range valid {
		require.NoError(t, p.Validate(), "pattern %+v should be valid", p)
	}

	invalid := []counter.Pattern{
		{},
		{Kind: "spiral"},
		{Kind: counter.PatternSimple, Step: 1},
		{Kind: counter.PatternFixed},
		{Kind: counter.PatternFixed, Step: 1, Every: 2},
		{Kind: counter.PatternEveryN, Step: 1},
		{Kind: counter.PatternEveryN, Every: 3},
		{Kind: counter.PatternEveryN, Step: 1, Every: 0},
		{Kind: counter.PatternRepeat},
		{Kind: counter.PatternRepeat, Step: 1, Steps: []int64{1}},
	}
	for _, p := range invalid {
		require.ErrorIs(t, p.Validate(), counter.ErrInvalidInput, "pattern %+v should be rejected", p)
	}
}

func TestAdvance_Simple(t *testing.T) {
	c := &counter.Counter{CurrentValue: 10, IncrementBy: 2, Pattern: counter.SimplePattern()}

	v, clicks, changed := c.Advance(1)
	require.True(t, changed)
	require.Equal(t, int64(12), v)
	require.Equal(t, int64(0), clicks)

	v, clicks, changed = c.Advance(-1)
	require.True(t, changed)
	require.Equal(t, int64(8), v)
	require.Equal(t, int64(0), clicks)
}

func TestAdvance_Fixed(t *testing.T) {
	// A fixed step overrides increment_by entirely.
	c := &counter.Counter{CurrentValue: 10, IncrementBy: 1, Pattern: counter.Pattern{Kind: counter.PatternFixed, Step: 5}}

	v, _, changed := c.Advance(1)
	require.True(t, changed)
	require.Equal(t, int64(15), v)

	v, _, changed = c.Advance(-1)
	require.True(t, changed)
	require.Equal(t, int64(5), v)
}

func TestAdvance_EveryN_Forward(t *testing.T) {
	// Every third invocation moves the value; the others advance the tally.
	c := &counter.Counter{CurrentValue: 0, Pattern: counter.Pattern{Kind: counter.PatternEveryN, Step: 1, Every: 3}}

	wantValue := []int64{0, 0, 1, 1, 1, 2}
	wantMoved := []bool{false, false, true, false, false, true}
	for i := 0; i < 6; i++ {
		v, clicks, changed := c.Advance(1)
		require.Equal(t, wantMoved[i], changed, "invocation %d", i+1)
		require.Equal(t, wantValue[i], v, "invocation %d", i+1)
		require.Equal(t, int64(i+1), clicks, "invocation %d", i+1)
		c.CurrentValue, c.Clicks = v, clicks
	}
}

func TestAdvance_EveryN_Backward(t *testing.T) {
	c := &counter.Counter{CurrentValue: 1, Clicks: 3, Pattern: counter.Pattern{Kind: counter.PatternEveryN, Step: 1, Every: 3}}

	// The tally sits on a firing click, so the decrement takes the step back.
	v, clicks, changed := c.Advance(-1)
	require.True(t, changed)
	require.Equal(t, int64(0), v)
	require.Equal(t, int64(2), clicks)
	c.CurrentValue, c.Clicks = v, clicks

	// Mid-cycle decrements only walk the tally down.
	v, clicks, changed = c.Advance(-1)
	require.False(t, changed)
	require.Equal(t, int64(0), v)
	require.Equal(t, int64(1), clicks)
	c.CurrentValue, c.Clicks = v, clicks

	v, clicks, changed = c.Advance(-1)
	require.False(t, changed)
	require.Equal(t, int64(0), clicks)
	c.CurrentValue, c.Clicks = v, clicks

	// At tally zero there is nothing left to unwind.
	v, clicks, changed = c.Advance(-1)
	require.False(t, changed)
	require.Equal(t, int64(0), v)
	require.Equal(t, int64(0), clicks)
}

func TestAdvance_EveryN_RoundTrip(t *testing.T) {
	c := &counter.Counter{CurrentValue: 4, Clicks: 7, Pattern: counter.Pattern{Kind: counter.PatternEveryN, Step: 2, Every: 4}}

	v, clicks, _ := c.Advance(1)
	next := &counter.Counter{CurrentValue: v, Clicks: clicks, Pattern: c.Pattern}
	v, clicks, _ = next.Advance(-1)
	require.Equal(t, c.CurrentValue, v)
	require.Equal(t, c.Clicks, clicks)
}

func TestAdvance_Repeat_Forward(t *testing.T) {
	// Classic 2/2/3 stitch repeat: values 2, 4, 7, 9, 11, 14.
	c := &counter.Counter{Pattern: counter.Pattern{Kind: counter.PatternRepeat, Steps: []int64{2, 2, 3}}}

	want := []int64{2, 4, 7, 9, 11, 14}
	for i, w := range want {
		v, clicks, changed := c.Advance(1)
		require.True(t, changed, "invocation %d", i+1)
		require.Equal(t, w, v, "invocation %d", i+1)
		require.Equal(t, int64(i+1), clicks)
		c.CurrentValue, c.Clicks = v, clicks
	}
}

func TestAdvance_Repeat_Backward(t *testing.T) {
	c := &counter.Counter{CurrentValue: 7, Clicks: 3, Pattern: counter.Pattern{Kind: counter.PatternRepeat, Steps: []int64{2, 2, 3}}}

	// Unwinds the steps in reverse order: -3, -2, -2.
	v, clicks, changed := c.Advance(-1)
	require.True(t, changed)
	require.Equal(t, int64(4), v)
	require.Equal(t, int64(2), clicks)
	c.CurrentValue, c.Clicks = v, clicks

	v, clicks, changed = c.Advance(-1)
	require.True(t, changed)
	require.Equal(t, int64(2), v)
	c.CurrentValue, c.Clicks = v, clicks

	v, clicks, changed = c.Advance(-1)
	require.True(t, changed)
	require.Equal(t, int64(0), v)
	require.Equal(t, int64(0), clicks)
	c.CurrentValue, c.Clicks = v, clicks

	v, clicks, changed = c.Advance(-1)
	require.False(t, changed)
	require.Equal(t, int64(0), v)
	require.Equal(t, int64(0), clicks)
}

func TestAdvance_Repeat_ZeroStep(t *testing.T) {
	// A zero entry in the cycle advances the tally without moving the value.
	c := &counter.Counter{CurrentValue: 5, Clicks: 1, Pattern: counter.Pattern{Kind: counter.PatternRepeat, Steps: []int64{1, 0}}}

	v, clicks, changed := c.Advance(1)
	require.False(t, changed)
	require.Equal(t, int64(5), v)
	require.Equal(t, int64(2), clicks)
}

func TestAdvance_ZeroIncrement(t *testing.T) {
	c := &counter.Counter{CurrentValue: 5, IncrementBy: 0, Pattern: counter.SimplePattern()}

	v, _, changed := c.Advance(1)
	require.False(t, changed)
	require.Equal(t, int64(5), v)
}

func TestCheckBounds(t *testing.T) {
	c := &counter.Counter{MinValue: i64(0), MaxValue: i64(10)}

	require.NoError(t, c.CheckBounds(0))
	require.NoError(t, c.CheckBounds(10))
	require.ErrorIs(t, c.CheckBounds(-1), counter.ErrBoundsExceeded)
	require.ErrorIs(t, c.CheckBounds(11), counter.ErrBoundsExceeded)

	open := &counter.Counter{}
	require.NoError(t, open.CheckBounds(-1000000))
	require.NoError(t, open.CheckBounds(1000000))
}

func TestResetValue(t *testing.T) {
	c := &counter.Counter{CurrentValue: 7, MinValue: i64(1)}
	require.Equal(t, int64(1), c.ResetValue(nil))
	require.Equal(t, int64(4), c.ResetValue(i64(4)))

	unbounded := &counter.Counter{CurrentValue: 7}
	require.Equal(t, int64(0), unbounded.ResetValue(nil))
}
