package client

import (
	"fmt"
	"time"
)

// Pattern mirrors the server's increment-behavior union.
type Pattern struct {
	Kind  string  `json:"kind"`
	Step  int64   `json:"step,omitempty"`
	Every int64   `json:"every,omitempty"`
	Steps []int64 `json:"steps,omitempty"`
}

// Counter is a tracked counter as the server reports it.
type Counter struct {
	ID           string    `json:"id"`
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

// nextValue predicts the transition one increment (direction +1) or
// decrement (direction -1) away, mirroring the server's pattern rules so
// an optimistic display lands where the confirmation will.
func (c Counter) nextValue(direction int64) (value, clicks int64, moves bool) {
	switch c.Pattern.Kind {
	case "fixed":
		step := c.Pattern.Step * direction
		return c.CurrentValue + step, c.Clicks, step != 0

	case "every_n":
		if direction >= 0 {
			n := c.Clicks + 1
			if n%c.Pattern.Every == 0 {
				return c.CurrentValue + c.Pattern.Step, n, true
			}
			return c.CurrentValue, n, false
		}
		if c.Clicks == 0 {
			return c.CurrentValue, 0, false
		}
		if c.Clicks%c.Pattern.Every == 0 {
			return c.CurrentValue - c.Pattern.Step, c.Clicks - 1, true
		}
		return c.CurrentValue, c.Clicks - 1, false

	case "repeat":
		n := int64(len(c.Pattern.Steps))
		if n == 0 {
			return c.CurrentValue, c.Clicks, false
		}
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

// resetValue predicts where a reset lands: the explicit value, else the
// lower bound, else zero.
func (c Counter) resetValue(explicit *int64) int64 {
	if explicit != nil {
		return *explicit
	}
	if c.MinValue != nil {
		return *c.MinValue
	}
	return 0
}

// Project is a counter collection.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectSummary is the listing view with counter counts.
type ProjectSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CounterCount   int       `json:"counter_count"`
	ActiveCounters int       `json:"active_counters"`
	CreatedAt      time.Time `json:"created_at"`
}

// Condition gates a conditional link on the source's committed value.
type Condition struct {
	Operator string `json:"operator"`
	Value    int64  `json:"value"`
}

// LinkAction is what firing a link does to its target.
type LinkAction struct {
	Type  string `json:"type"`
	Value *int64 `json:"value,omitempty"`
}

// Link is a directed automation edge between two counters.
type Link struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	SourceCounterID string     `json:"source_counter_id"`
	TargetCounterID string     `json:"target_counter_id"`
	Type            string     `json:"type"`
	Condition       *Condition `json:"condition,omitempty"`
	Action          LinkAction `json:"action"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Entry is one ledger record.
type Entry struct {
	ID            int64     `json:"id"`
	ProjectID     string    `json:"project_id"`
	CounterID     string    `json:"counter_id"`
	OldValue      int64     `json:"old_value"`
	NewValue      int64     `json:"new_value"`
	Action        string    `json:"action"`
	UserNote      *string   `json:"user_note,omitempty"`
	TriggeredBy   *string   `json:"triggered_by,omitempty"`
	UndoneEntryID *int64    `json:"undone_entry_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Change is one committed value transition inside a mutation's change set.
type Change struct {
	CounterID string  `json:"counter_id"`
	OldValue  int64   `json:"old_value"`
	NewValue  int64   `json:"new_value"`
	Action    string  `json:"action"`
	EntryID   int64   `json:"entry_id"`
	LinkID    *string `json:"link_id,omitempty"`
}

// Skip records a link that fired but was not applied.
type Skip struct {
	LinkID          string `json:"link_id"`
	SourceCounterID string `json:"source_counter_id"`
	TargetCounterID string `json:"target_counter_id"`
	Reason          string `json:"reason"`
}

// UpdateResult is a value mutation's committed outcome.
type UpdateResult struct {
	Counter *Counter `json:"counter"`
	Changes []Change `json:"changes,omitempty"`
	Skips   []Skip   `json:"skips,omitempty"`
}

// UndoResult is an undo's committed outcome.
type UndoResult struct {
	Entry   *Entry   `json:"entry"`
	Changes []Change `json:"changes,omitempty"`
	Skips   []Skip   `json:"skips,omitempty"`
}

// Event is one broadcast change as delivered on the project feed.
type Event struct {
	Seq         int64     `json:"seq"`
	ProjectID   string    `json:"project_id"`
	CounterID   string    `json:"counter_id"`
	OldValue    int64     `json:"old_value"`
	Value       int64     `json:"value"`
	Action      string    `json:"action"`
	TriggeredBy *string   `json:"triggered_by,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	At          time.Time `json:"at"`
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (status %d, %s): %s", e.Status, e.Code, e.Message)
}
