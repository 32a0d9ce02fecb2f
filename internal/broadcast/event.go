package broadcast

import "time"

// Event is one committed counter change fanned out to project subscribers.
// Seq is the id of the history entry backing the change, so events for a
// single counter carry strictly increasing sequence numbers and subscribers
// can order and deduplicate. Origin is the device tag of the client that
// issued the root mutation; clients use it to drop echoes of their own
// operations.
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
