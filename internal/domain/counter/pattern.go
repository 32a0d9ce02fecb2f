package counter

// PatternKind selects the increment strategy of a counter.
type PatternKind string

const (
	// PatternSimple steps by the counter's increment_by.
	PatternSimple PatternKind = "simple"
	// PatternFixed steps by the pattern's own step, overriding increment_by.
	PatternFixed PatternKind = "fixed"
	// PatternEveryN moves the value by step only on every Nth invocation;
	// the other invocations advance the click tally alone.
	PatternEveryN PatternKind = "every_n"
	// PatternRepeat cycles through a list of step amounts, one per invocation.
	PatternRepeat PatternKind = "repeat"
)

// Pattern is the tagged increment-behavior union stored with each counter.
type Pattern struct {
	Kind  PatternKind `json:"kind"`
	Step  int64       `json:"step,omitempty"`
	Every int64       `json:"every,omitempty"`
	Steps []int64     `json:"steps,omitempty"`
}

// SimplePattern is the default behavior: step by increment_by every time.
func SimplePattern() Pattern {
	return Pattern{Kind: PatternSimple}
}

// Validate rejects malformed patterns. Each kind permits exactly the fields
// it uses.
func (p Pattern) Validate() error {
	switch p.Kind {
	case PatternSimple:
		if p.Step != 0 || p.Every != 0 || len(p.Steps) != 0 {
			return ErrInvalidInput
		}
	case PatternFixed:
		if p.Step == 0 || p.Every != 0 || len(p.Steps) != 0 {
			return ErrInvalidInput
		}
	case PatternEveryN:
		if p.Step == 0 || p.Every < 1 || len(p.Steps) != 0 {
			return ErrInvalidInput
		}
	case PatternRepeat:
		if p.Step != 0 || p.Every != 0 || len(p.Steps) == 0 {
			return ErrInvalidInput
		}
	default:
		return ErrInvalidInput
	}
	return nil
}

// TracksClicks reports whether the pattern consumes the invocation tally.
func (p Pattern) TracksClicks() bool {
	return p.Kind == PatternEveryN || p.Kind == PatternRepeat
}

// Advance computes the candidate transition for one increment (direction +1)
// or decrement (direction -1) invocation under the counter's pattern. It
// returns the candidate value, the new click tally, and whether the value
// actually moves; an every_n invocation between firing clicks and a repeat
// step of zero advance the tally only. Decrements walk the tally backward so
// an increment followed by a decrement round-trips, and are a no-op at tally
// zero for stateful patterns.
func (c *Counter) Advance(direction int64) (newValue, newClicks int64, changed bool) {
	switch c.Pattern.Kind {
	case PatternFixed:
		step := c.Pattern.Step * direction
		return c.CurrentValue + step, c.Clicks, step != 0

	case PatternEveryN:
		if direction >= 0 {
			clicks := c.Clicks + 1
			if clicks%c.Pattern.Every == 0 {
				return c.CurrentValue + c.Pattern.Step, clicks, true
			}
			return c.CurrentValue, clicks, false
		}
		if c.Clicks == 0 {
			return c.CurrentValue, 0, false
		}
		if c.Clicks%c.Pattern.Every == 0 {
			return c.CurrentValue - c.Pattern.Step, c.Clicks - 1, true
		}
		return c.CurrentValue, c.Clicks - 1, false

	case PatternRepeat:
		n := int64(len(c.Pattern.Steps))
		if direction >= 0 {
			step := c.Pattern.Steps[c.Clicks%n]
			return c.CurrentValue + step, c.Clicks + 1, step != 0
		}
		if c.Clicks == 0 {
			return c.CurrentValue, 0, false
		}
		step := c.Pattern.Steps[(c.Clicks-1)%n]
		return c.CurrentValue - step, c.Clicks - 1, step != 0

	default:
		step := c.IncrementBy * direction
		return c.CurrentValue + step, c.Clicks, step != 0
	}
}
