package history

import "time"

// Action is the kind of value transition an entry records.
type Action string

const (
	ActionCreated   Action = "created"
	ActionIncrement Action = "increment"
	ActionDecrement Action = "decrement"
	ActionReset     Action = "reset"
	ActionSet       Action = "set"
	ActionUndo      Action = "undo"
)

// Entry is a single immutable value transition in a counter's ledger.
// TriggeredBy carries the link id for cascaded transitions; UndoneEntryID
// references the entry an undo reverted. Entry ids are assigned by storage
// in commit order and double as the broadcast sequence.
type Entry struct {
	ID            int64     `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ProjectID     string    `json:"project_id"`
	CounterID     string    `json:"counter_id"`
	OldValue      int64     `json:"old_value"`
	NewValue      int64     `json:"new_value"`
	Action        Action    `json:"action"`
	UserNote      *string   `json:"user_note,omitempty"`
	TriggeredBy   *string   `json:"triggered_by,omitempty"`
	UndoneEntryID *int64    `json:"undone_entry_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListOptions provides paging for ledger queries. Entries come back
// newest-first; Offset restarts a page anywhere in the sequence.
type ListOptions struct {
	Limit  int
	Offset int
}
