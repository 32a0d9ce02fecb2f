package counter

import "strings"

// ValidateSpec checks a counter definition: name, increment, pattern shape,
// bounds consistency, and that the current value sits inside the bounds.
func ValidateSpec(c *Counter) error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrInvalidInput
	}
	if c.ProjectID == "" {
		return ErrInvalidInput
	}
	if c.IncrementBy == 0 {
		return ErrInvalidInput
	}
	if err := c.Pattern.Validate(); err != nil {
		return err
	}
	if c.MinValue != nil && c.MaxValue != nil && *c.MinValue > *c.MaxValue {
		return ErrInvalidInput
	}
	if c.MinValue != nil && c.CurrentValue < *c.MinValue {
		return ErrInvalidInput
	}
	if c.MaxValue != nil && c.CurrentValue > *c.MaxValue {
		return ErrInvalidInput
	}
	return nil
}

func validateUpdateRequest(req UpdateRequest) error {
	if req.CounterID == "" {
		return ErrInvalidInput
	}
	switch req.Op {
	case OpIncrement, OpDecrement:
		// Step size comes from the counter's own pattern.
		if req.Value != nil {
			return ErrInvalidInput
		}
	case OpReset:
	case OpSet:
		if req.Value == nil {
			return ErrInvalidInput
		}
	default:
		return ErrInvalidInput
	}
	return nil
}
