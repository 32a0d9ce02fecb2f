package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrUnauthorized indicates the caller may not read the project's feed.
	ErrUnauthorized = errors.New("not authorized for project feed")
	// ErrHubClosed indicates the hub is shutting down.
	ErrHubClosed = errors.New("broadcast hub closed")
)

// ProjectAuthorizer gates subscriptions on project ownership.
type ProjectAuthorizer interface {
	AuthorizeProject(ctx context.Context, tenantID, projectID string) error
}

// Subscription is one subscriber's buffered feed for a single project.
// Events delivers batches in commit order; each batch is the complete change
// set of one root update.
type Subscription struct {
	hub       *Hub
	projectID string
	ch        chan []Event
}

// Events returns the feed channel. It is closed when the subscription or
// the hub shuts down.
func (s *Subscription) Events() <-chan []Event {
	return s.ch
}

// Close detaches the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans committed change sets out to per-project subscribers. Delivery is
// at-most-once: a subscriber whose buffer is full misses the batch and is
// expected to resync from counter state.
type Hub struct {
	auth   ProjectAuthorizer
	buffer int
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewHub creates a hub whose subscriptions buffer up to buffer batches.
func NewHub(auth ProjectAuthorizer, buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{
		auth:   auth,
		buffer: buffer,
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a feed for one project after verifying the caller may
// read it. The subscription is dropped when ctx ends or Close is called.
func (h *Hub) Subscribe(ctx context.Context, tenantID, projectID string) (*Subscription, error) {
	if h.auth != nil {
		if err := h.auth.AuthorizeProject(ctx, tenantID, projectID); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{
		hub:       h,
		projectID: projectID,
		ch:        make(chan []Event, h.buffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	set, ok := h.subs[projectID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[projectID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish delivers one committed change set to the project's subscribers.
// Slow subscribers are skipped, never waited on.
func (h *Hub) Publish(projectID string, events []Event) {
	if len(events) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[projectID] {
		select {
		case sub.ch <- events:
		default:
			h.logger.Warn("subscriber buffer full, dropping batch",
				"project_id", projectID,
				"events", len(events),
			)
		}
	}
}

// Close shuts the hub down and closes every live subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for projectID, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, projectID)
	}
}

// unsubscribe removes s and closes its channel. Channel sends happen under
// the read lock, so closing under the write lock cannot race a publish. The
// membership check makes repeated Close calls harmless.
func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.projectID]
	if !ok {
		return
	}
	if _, live := set[s]; !live {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.projectID)
	}
	close(s.ch)
}
