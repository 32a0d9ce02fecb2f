package counter

import "time"

// Op is a user-facing value operation.
type Op string

const (
	OpIncrement Op = "increment"
	OpDecrement Op = "decrement"
	OpReset     Op = "reset"
	OpSet       Op = "set"
)

// Counter is a named, bounded, steppable progress tracker inside a project.
// Clicks is the counter-local invocation tally used by stateful increment
// patterns; it is not meaningful to other components.
type Counter struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	ProjectID    string    `json:"project_id"`
	ParentID     *string   `json:"parent_id,omitempty"`
	Name         string    `json:"name"`
	CurrentValue int64     `json:"current_value"`
	MinValue     *int64    `json:"min_value,omitempty"`
	MaxValue     *int64    `json:"max_value,omitempty"`
	IncrementBy  int64     `json:"increment_by"`
	Pattern      Pattern   `json:"pattern"`
	Clicks       int64     `json:"clicks"`
	DisplayColor string    `json:"display_color,omitempty"`
	IsVisible    bool      `json:"is_visible"`
	SortOrder    int       `json:"sort_order"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CheckBounds reports whether v fits the counter's min/max. Violations are
// rejected by callers, never clamped.
func (c *Counter) CheckBounds(v int64) error {
	if c.MinValue != nil && v < *c.MinValue {
		return ErrBoundsExceeded
	}
	if c.MaxValue != nil && v > *c.MaxValue {
		return ErrBoundsExceeded
	}
	return nil
}

// ResetValue picks the value a reset returns the counter to: the explicit
// value when given, otherwise the lower bound, otherwise zero.
func (c *Counter) ResetValue(explicit *int64) int64 {
	if explicit != nil {
		return *explicit
	}
	if c.MinValue != nil {
		return *c.MinValue
	}
	return 0
}
