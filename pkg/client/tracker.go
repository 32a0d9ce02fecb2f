package client

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownCounter means the tracker has no confirmed state for the id.
	ErrUnknownCounter = errors.New("counter not tracked")
	// ErrUnknownToken means the mutation token is not outstanding.
	ErrUnknownToken = errors.New("unknown mutation token")
)

// NoticeKind classifies tracker notices.
type NoticeKind string

const (
	// NoticeRejected reports a staged mutation rolled back to confirmed state.
	NoticeRejected NoticeKind = "rejected"
	// NoticeResyncDropped reports a staged mutation discarded by a resync.
	NoticeResyncDropped NoticeKind = "resync_dropped"
	// NoticeUnknownCounter reports an event for a counter the tracker does
	// not hold; the caller should refetch the project.
	NoticeUnknownCounter NoticeKind = "unknown_counter"
)

// Notice is a non-blocking signal about a reconciliation outcome the UI may
// want to surface.
type Notice struct {
	Kind      NoticeKind
	CounterID string
	Err       error
}

// Tracker reconciles one device's optimistic view of its counters with
// confirmed server state. Staged mutations move the display immediately;
// confirmations promote server truth, rejections roll back, and broadcast
// events merge in unless the counter has a mutation in flight, in which
// case they wait until it resolves. Safe for concurrent use.
type Tracker struct {
	origin string

	mu       sync.Mutex
	counters map[string]*Counter // confirmed server truth
	staged   map[string]*Counter // optimistic copy while ops are in flight
	pending  map[string]int      // in-flight staged ops per counter
	tokens   map[string]string   // mutation token -> counter id
	deferred map[string][]Event  // events held back behind pending ops
	seen     map[string]int64    // highest applied sequence per counter
	notices  chan Notice
}

// NewTracker creates a tracker for the given device origin tag. Events
// carrying the same origin are this device's own echoes and are dropped.
func NewTracker(origin string) *Tracker {
	return &Tracker{
		origin:   origin,
		counters: make(map[string]*Counter),
		staged:   make(map[string]*Counter),
		pending:  make(map[string]int),
		tokens:   make(map[string]string),
		deferred: make(map[string][]Event),
		seen:     make(map[string]int64),
		notices:  make(chan Notice, 16),
	}
}

// Notices delivers reconciliation notices. The channel is buffered and
// never blocks the tracker; unread notices are dropped.
func (t *Tracker) Notices() <-chan Notice {
	return t.notices
}

// Seed sets confirmed state from a fetch or snapshot, clearing everything
// staged without notices.
func (t *Tracker) Seed(counters []Counter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(counters, false)
}

// Resync replaces all confirmed state after a reconnect gap. Staged
// mutations still in flight are discarded with a notice each; their
// responses will arrive for tokens the tracker no longer holds.
func (t *Tracker) Resync(counters []Counter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(counters, true)
}

func (t *Tracker) resetLocked(counters []Counter, notify bool) {
	if notify {
		for _, counterID := range t.tokens {
			t.notifyLocked(Notice{Kind: NoticeResyncDropped, CounterID: counterID})
		}
	}
	t.counters = make(map[string]*Counter, len(counters))
	for i := range counters {
		c := counters[i]
		t.counters[c.ID] = &c
	}
	t.staged = make(map[string]*Counter)
	t.pending = make(map[string]int)
	t.tokens = make(map[string]string)
	t.deferred = make(map[string][]Event)
}

// Track upserts confirmed state for a single counter, leaving any staged
// overlay in place.
func (t *Tracker) Track(c Counter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[c.ID] = &c
}

// Value returns the display value: the staged optimistic value while a
// mutation is in flight, the confirmed value otherwise.
func (t *Tracker) Value(counterID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.staged[counterID]; ok {
		return s.CurrentValue, true
	}
	if c, ok := t.counters[counterID]; ok {
		return c.CurrentValue, true
	}
	return 0, false
}

// Counter returns the display copy of one counter.
func (t *Tracker) Counter(counterID string) (Counter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.staged[counterID]; ok {
		return *s, true
	}
	if c, ok := t.counters[counterID]; ok {
		return *c, true
	}
	return Counter{}, false
}

// Counters returns display copies of every tracked counter in display order.
func (t *Tracker) Counters() []Counter {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Counter, 0, len(t.counters))
	for id, c := range t.counters {
		if s, ok := t.staged[id]; ok {
			out = append(out, *s)
		} else {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pending reports whether the counter has a mutation in flight.
func (t *Tracker) Pending(counterID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[counterID] > 0
}

// Stage records an in-flight mutation with an explicit optimistic value and
// returns its token. The display moves immediately.
func (t *Tracker) Stage(counterID string, optimistic int64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stageLocked(counterID, func(c *Counter) {
		c.CurrentValue = optimistic
	})
}

// StageAdvance stages one increment (direction +1) or decrement (-1) with
// the optimistic value predicted by the counter's own pattern, so rapid
// taps chain off each other. Returns the token and the new display value.
func (t *Tracker) StageAdvance(counterID string, direction int64) (string, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var display int64
	token, err := t.stageLocked(counterID, func(c *Counter) {
		value, clicks, _ := c.nextValue(direction)
		c.CurrentValue = value
		c.Clicks = clicks
		display = value
	})
	return token, display, err
}

// StageReset stages a reset to the explicit value, or the counter's lower
// bound, or zero.
func (t *Tracker) StageReset(counterID string, explicit *int64) (string, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var display int64
	token, err := t.stageLocked(counterID, func(c *Counter) {
		c.CurrentValue = c.resetValue(explicit)
		c.Clicks = 0
		display = c.CurrentValue
	})
	return token, display, err
}

func (t *Tracker) stageLocked(counterID string, mutate func(*Counter)) (string, error) {
	base, ok := t.staged[counterID]
	if !ok {
		confirmed, exists := t.counters[counterID]
		if !exists {
			return "", ErrUnknownCounter
		}
		copied := *confirmed
		base = &copied
		t.staged[counterID] = base
	}
	mutate(base)

	token := uuid.Must(uuid.NewV7()).String()
	t.tokens[token] = counterID
	t.pending[counterID]++
	return token, nil
}

// Confirm resolves a staged mutation with the server's committed result and
// promotes its change set, cascades included, to confirmed state.
func (t *Tracker) Confirm(token string, res *UpdateResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	counterID, ok := t.tokens[token]
	if !ok {
		return ErrUnknownToken
	}
	t.resolveLocked(token, counterID)

	if res == nil {
		t.flushLocked(counterID)
		return nil
	}
	if res.Counter != nil {
		copied := *res.Counter
		t.counters[copied.ID] = &copied
	}
	for _, ch := range res.Changes {
		t.applyChangeLocked(ch)
	}

	t.flushLocked(counterID)
	for _, ch := range res.Changes {
		t.flushLocked(ch.CounterID)
	}
	return nil
}

// Reject rolls the counter's display back to last confirmed state and
// emits a notice.
func (t *Tracker) Reject(token string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	counterID, ok := t.tokens[token]
	if !ok {
		return ErrUnknownToken
	}
	t.resolveLocked(token, counterID)
	t.flushLocked(counterID)
	t.notifyLocked(Notice{Kind: NoticeRejected, CounterID: counterID, Err: cause})
	return nil
}

// resolveLocked retires one in-flight op; the staged overlay drops once the
// last op for the counter resolves.
func (t *Tracker) resolveLocked(token, counterID string) {
	delete(t.tokens, token)
	if t.pending[counterID] <= 1 {
		delete(t.pending, counterID)
		delete(t.staged, counterID)
	} else {
		t.pending[counterID]--
	}
}

// Absorb merges one broadcast event. The remote value wins unless this
// counter has a mutation in flight, in which case the event waits for it;
// this device's own echoes are dropped.
func (t *Tracker) Absorb(ev Event) {
	if ev.Origin != "" && ev.Origin == t.origin {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending[ev.CounterID] > 0 {
		t.deferred[ev.CounterID] = append(t.deferred[ev.CounterID], ev)
		return
	}
	t.applyEventLocked(ev)
}

func (t *Tracker) flushLocked(counterID string) {
	if t.pending[counterID] > 0 {
		return
	}
	events := t.deferred[counterID]
	if len(events) == 0 {
		return
	}
	delete(t.deferred, counterID)
	for _, ev := range events {
		t.applyEventLocked(ev)
	}
}

func (t *Tracker) applyEventLocked(ev Event) {
	if ev.Seq <= t.seen[ev.CounterID] {
		return
	}
	c, ok := t.counters[ev.CounterID]
	if !ok {
		t.notifyLocked(Notice{Kind: NoticeUnknownCounter, CounterID: ev.CounterID})
		return
	}
	c.CurrentValue = ev.Value
	t.seen[ev.CounterID] = ev.Seq
}

func (t *Tracker) applyChangeLocked(ch Change) {
	if ch.EntryID > t.seen[ch.CounterID] {
		t.seen[ch.CounterID] = ch.EntryID
	}
	c, ok := t.counters[ch.CounterID]
	if !ok {
		return
	}
	c.CurrentValue = ch.NewValue
}

func (t *Tracker) notifyLocked(n Notice) {
	select {
	case t.notices <- n:
	default:
	}
}
