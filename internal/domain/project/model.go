package project

import "time"

// Project is the ownership boundary for counters, links, history, and the
// sync feed. Links never cross projects and neither do cascades.
type Project struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectSummary is a lightweight representation for listing.
type ProjectSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CounterCount   int       `json:"counter_count"`
	ActiveCounters int       `json:"active_counters"`
	CreatedAt      time.Time `json:"created_at"`
}
