// Package client is the Go client for a tally server: typed REST calls, a
// live WebSocket project feed, and a Tracker that keeps an optimistic local
// view of counter values while mutations are in flight.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// deviceHeader carries the device tag; the server stamps it on broadcast
// events as origin so this device can drop its own echoes.
const deviceHeader = "X-Tally-Device"

// Client talks to a tally server. Mutation helpers stage their effect on
// the Tracker before the request and confirm or reject it with the response.
type Client struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
	tracker  *Tracker
}

// New creates a client. An empty deviceID gets a generated one.
func New(baseURL, token, deviceID string) *Client {
	if deviceID == "" {
		deviceID = "dev-" + uuid.Must(uuid.NewV7()).String()
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		deviceID: deviceID,
		http:     &http.Client{Timeout: 30 * time.Second},
		tracker:  NewTracker(deviceID),
	}
}

// DeviceID returns the tag this client stamps on its mutations.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// Tracker exposes the optimistic state for display.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	var p Project
	err := c.do(ctx, http.MethodPost, "/api/v1/projects", map[string]string{
		"name":        name,
		"description": description,
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Projects lists the tenant's projects with counter counts.
func (c *Client) Projects(ctx context.Context) ([]ProjectSummary, error) {
	var out struct {
		Projects []ProjectSummary `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+projectID, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject removes a project and everything in it.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/projects/"+projectID, nil, nil)
}

// CounterSpec describes a counter to create.
type CounterSpec struct {
	ParentID     *string  `json:"parent_id,omitempty"`
	Name         string   `json:"name"`
	InitialValue *int64   `json:"initial_value,omitempty"`
	MinValue     *int64   `json:"min_value,omitempty"`
	MaxValue     *int64   `json:"max_value,omitempty"`
	IncrementBy  int64    `json:"increment_by,omitempty"`
	Pattern      *Pattern `json:"pattern,omitempty"`
	DisplayColor string   `json:"display_color,omitempty"`
	IsVisible    *bool    `json:"is_visible,omitempty"`
	SortOrder    int      `json:"sort_order,omitempty"`
}

// CreateCounter creates a counter and starts tracking it.
func (c *Client) CreateCounter(ctx context.Context, projectID string, spec CounterSpec) (*Counter, error) {
	var created Counter
	err := c.do(ctx, http.MethodPost, "/api/v1/projects/"+projectID+"/counters", spec, &created)
	if err != nil {
		return nil, err
	}
	c.tracker.Track(created)
	return &created, nil
}

// Counters fetches a project's counters and seeds the tracker with them.
func (c *Client) Counters(ctx context.Context, projectID string) ([]Counter, error) {
	var out struct {
		Counters []Counter `json:"counters"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+projectID+"/counters", nil, &out); err != nil {
		return nil, err
	}
	c.tracker.Seed(out.Counters)
	return out.Counters, nil
}

// GetCounter fetches one counter and refreshes its tracked state.
func (c *Client) GetCounter(ctx context.Context, counterID string) (*Counter, error) {
	var got Counter
	if err := c.do(ctx, http.MethodGet, "/api/v1/counters/"+counterID, nil, &got); err != nil {
		return nil, err
	}
	c.tracker.Track(got)
	return &got, nil
}

// Increment advances the counter under its pattern. The display moves
// optimistically and settles on the server's committed change set.
func (c *Client) Increment(ctx context.Context, counterID, note string) (*UpdateResult, error) {
	return c.advance(ctx, counterID, note, +1)
}

// Decrement walks the counter's pattern one invocation backward.
func (c *Client) Decrement(ctx context.Context, counterID, note string) (*UpdateResult, error) {
	return c.advance(ctx, counterID, note, -1)
}

func (c *Client) advance(ctx context.Context, counterID, note string, direction int64) (*UpdateResult, error) {
	op := "increment"
	if direction < 0 {
		op = "decrement"
	}

	token, _, stageErr := c.tracker.StageAdvance(counterID, direction)
	res, err := c.valueOp(ctx, counterID, op, nil, note)
	c.settle(token, stageErr, res, err)
	return res, err
}

// Set forces the counter to an explicit value.
func (c *Client) Set(ctx context.Context, counterID string, value int64, note string) (*UpdateResult, error) {
	token, stageErr := c.tracker.Stage(counterID, value)
	res, err := c.valueOp(ctx, counterID, "set", &value, note)
	c.settle(token, stageErr, res, err)
	return res, err
}

// Reset returns the counter to the explicit value, or its lower bound, or
// zero, and fires any reset-watching links.
func (c *Client) Reset(ctx context.Context, counterID string, to *int64, note string) (*UpdateResult, error) {
	token, _, stageErr := c.tracker.StageReset(counterID, to)
	res, err := c.valueOp(ctx, counterID, "reset", to, note)
	c.settle(token, stageErr, res, err)
	return res, err
}

// settle resolves a staged mutation against the request outcome. Untracked
// counters stage nothing and settle nothing.
func (c *Client) settle(token string, stageErr error, res *UpdateResult, err error) {
	if stageErr != nil {
		return
	}
	if err != nil {
		_ = c.tracker.Reject(token, err)
		return
	}
	_ = c.tracker.Confirm(token, res)
}

func (c *Client) valueOp(ctx context.Context, counterID, op string, value *int64, note string) (*UpdateResult, error) {
	body := struct {
		Op    string  `json:"op"`
		Value *int64  `json:"value,omitempty"`
		Note  *string `json:"note,omitempty"`
	}{Op: op, Value: value}
	if note != "" {
		body.Note = &note
	}

	var res UpdateResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/counters/"+counterID+"/value", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LinkSpec describes a link to register.
type LinkSpec struct {
	SourceCounterID string     `json:"source_counter_id"`
	TargetCounterID string     `json:"target_counter_id"`
	Type            string     `json:"type"`
	Condition       *Condition `json:"condition,omitempty"`
	Action          LinkAction `json:"action"`
}

// RegisterLink creates an automation edge between two counters.
func (c *Client) RegisterLink(ctx context.Context, projectID string, spec LinkSpec) (*Link, error) {
	var l Link
	if err := c.do(ctx, http.MethodPost, "/api/v1/projects/"+projectID+"/links", spec, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Links lists a project's links.
func (c *Client) Links(ctx context.Context, projectID string) ([]Link, error) {
	var out struct {
		Links []Link `json:"links"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+projectID+"/links", nil, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

// DeleteLink removes a link.
func (c *Client) DeleteLink(ctx context.Context, linkID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/links/"+linkID, nil, nil)
}

// CounterHistory pages a counter's ledger, newest first.
func (c *Client) CounterHistory(ctx context.Context, counterID string, limit, offset int) ([]Entry, error) {
	return c.history(ctx, "/api/v1/counters/"+counterID+"/history", limit, offset)
}

// ProjectHistory pages a project's combined ledger, newest first.
func (c *Client) ProjectHistory(ctx context.Context, projectID string, limit, offset int) ([]Entry, error) {
	return c.history(ctx, "/api/v1/projects/"+projectID+"/history", limit, offset)
}

func (c *Client) history(ctx context.Context, path string, limit, offset int) ([]Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var out struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Undo re-applies a past entry's old value as a fresh forward mutation and
// folds the committed change set into the tracker.
func (c *Client) Undo(ctx context.Context, entryID int64, note string) (*UndoResult, error) {
	body := struct {
		Note *string `json:"note,omitempty"`
	}{}
	if note != "" {
		body.Note = &note
	}

	var res UndoResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/history/%d/undo", entryID), body, &res); err != nil {
		return nil, err
	}

	// Undo is not staged, so absorb its changes like remote events; the
	// feed's copies dedupe on sequence.
	for _, ch := range res.Changes {
		c.tracker.Absorb(Event{
			Seq:       ch.EntryID,
			CounterID: ch.CounterID,
			OldValue:  ch.OldValue,
			Value:     ch.NewValue,
			Action:    ch.Action,
		})
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(deviceHeader, c.deviceID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// feedFrame mirrors the server's WS frames.
type feedFrame struct {
	Type     string    `json:"type"`
	Counters []Counter `json:"counters,omitempty"`
	Events   []Event   `json:"events,omitempty"`
}

// Feed is a live project subscription. Events stream into the client's
// tracker until the connection drops or the subscribing context ends.
type Feed struct {
	conn *websocket.Conn
	done chan struct{}
	err  error
}

// Subscribe opens the project's event feed. The snapshot frame the server
// sends first resyncs the tracker, closing any gap from a previous
// connection; after that every broadcast event is absorbed as it arrives.
// Reconnecting is the caller's job: call Subscribe again and the fresh
// snapshot reconciles whatever was missed.
func (c *Client) Subscribe(ctx context.Context, projectID string) (*Feed, error) {
	feedURL, err := c.feedURL(projectID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set(deviceHeader, c.deviceID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, feedURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, fmt.Errorf("dial feed: %w: %v", err, decodeAPIError(resp))
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var snap feedFrame
	if err := conn.ReadJSON(&snap); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Type != "snapshot" {
		conn.Close()
		return nil, fmt.Errorf("expected snapshot frame, got %q", snap.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})
	c.tracker.Resync(snap.Counters)

	f := &Feed{conn: conn, done: make(chan struct{})}
	go f.pump(c.tracker)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-f.done:
		}
	}()
	return f, nil
}

func (c *Client) feedURL(projectID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/projects/" + projectID + "/events"
	return u.String(), nil
}

func (f *Feed) pump(tracker *Tracker) {
	defer close(f.done)
	for {
		var frame feedFrame
		if err := f.conn.ReadJSON(&frame); err != nil {
			f.err = err
			return
		}
		if frame.Type != "counter.changed" {
			continue
		}
		for _, ev := range frame.Events {
			tracker.Absorb(ev)
		}
	}
}

// Done closes when the feed stops.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Err reports why the feed stopped. Valid after Done closes.
func (f *Feed) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Close tears the feed down.
func (f *Feed) Close() error {
	return f.conn.Close()
}
