package link

import "time"

// Type classifies the relationship a link encodes between two counters.
type Type string

const (
	// TypeResetOnTarget resets the target when the source hits the trigger value.
	TypeResetOnTarget Type = "reset_on_target"
	// TypeConditional applies an arbitrary action when the condition holds.
	TypeConditional Type = "conditional"
	// TypeAdvanceTogether fires on every committed source change, no condition.
	TypeAdvanceTogether Type = "advance_together"
)

// Operator compares a source counter's new value against the trigger value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// ActionType is the effect applied to the target counter when a link fires.
type ActionType string

const (
	ActionReset     ActionType = "reset"
	ActionSet       ActionType = "set"
	ActionIncrement ActionType = "increment"
)

// Condition is the trigger evaluated against the source's committed value.
type Condition struct {
	Operator Operator `json:"operator"`
	Value    int64    `json:"value"`
}

// Action describes what happens to the target counter when the link fires.
// Value is required for reset and set. For increment it is optional; when
// absent the target advances by its own increment pattern.
type Action struct {
	Type  ActionType `json:"type"`
	Value *int64     `json:"value,omitempty"`
}

// Link is a directed, conditional edge between two counters in a project.
type Link struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	ProjectID       string     `json:"project_id"`
	SourceCounterID string     `json:"source_counter_id"`
	TargetCounterID string     `json:"target_counter_id"`
	Type            Type       `json:"type"`
	Condition       *Condition `json:"condition,omitempty"`
	Action          Action     `json:"action"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Fires reports whether the link's trigger is satisfied by the source
// counter's committed value. advance_together links fire unconditionally.
func (l *Link) Fires(sourceValue int64) bool {
	if !l.IsActive {
		return false
	}
	if l.Type == TypeAdvanceTogether {
		return true
	}
	if l.Condition == nil {
		return false
	}
	switch l.Condition.Operator {
	case OpEquals:
		return sourceValue == l.Condition.Value
	case OpGreaterThan:
		return sourceValue > l.Condition.Value
	case OpLessThan:
		return sourceValue < l.Condition.Value
	default:
		return false
	}
}

// ValidateShape checks the per-type shape of condition and action. Endpoint
// validation (self-links, project scoping) happens in the service, which can
// see the counters.
func (l *Link) ValidateShape() error {
	switch l.Type {
	case TypeResetOnTarget:
		if l.Condition == nil {
			return ErrInvalidInput
		}
		if l.Action.Type != ActionReset {
			return ErrInvalidInput
		}
	case TypeConditional:
		if l.Condition == nil {
			return ErrInvalidInput
		}
	case TypeAdvanceTogether:
		if l.Condition != nil {
			return ErrInvalidInput
		}
		if l.Action.Type != ActionIncrement {
			return ErrInvalidInput
		}
	default:
		return ErrInvalidInput
	}

	if l.Condition != nil {
		switch l.Condition.Operator {
		case OpEquals, OpGreaterThan, OpLessThan:
		default:
			return ErrInvalidInput
		}
	}

	switch l.Action.Type {
	case ActionReset, ActionSet:
		if l.Action.Value == nil {
			return ErrInvalidInput
		}
	case ActionIncrement:
	default:
		return ErrInvalidInput
	}

	return nil
}
