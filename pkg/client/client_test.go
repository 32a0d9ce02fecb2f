package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knitgrid/tally/internal/testserver"
	"github.com/knitgrid/tally/pkg/client"
)

func newClient(t *testing.T, device string) (*client.Client, *testserver.TestServer) {
	t.Helper()
	ts := testserver.New(t, "test-token", "tenant1")
	return client.New(ts.Server.URL, ts.Token, device), ts
}

func TestClient_CounterFlow(t *testing.T) {
	c, _ := newClient(t, "phone-1")
	ctx := context.Background()

	proj, err := c.CreateProject(ctx, "Socks", "Plain stockinette")
	require.NoError(t, err)

	row, err := c.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Rows", MinValue: i64(0)})
	require.NoError(t, err)

	res, err := c.Increment(ctx, row.ID, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Counter.CurrentValue)

	// The tracker settles on the confirmed value.
	v, ok := c.Tracker().Value(row.ID)
	require.True(t, ok)
	require.Equal(t, int64(1), v)

	res, err = c.Set(ctx, row.ID, 12, "picked up after a break")
	require.NoError(t, err)
	require.Equal(t, int64(12), res.Counter.CurrentValue)

	res, err = c.Decrement(ctx, row.ID, "")
	require.NoError(t, err)
	require.Equal(t, int64(11), res.Counter.CurrentValue)

	res, err = c.Reset(ctx, row.ID, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Counter.CurrentValue)

	v, _ = c.Tracker().Value(row.ID)
	require.Equal(t, int64(0), v)

	entries, err := c.CounterHistory(ctx, row.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "reset", entries[0].Action)
}

func TestClient_BoundsRejectionRollsBack(t *testing.T) {
	c, _ := newClient(t, "phone-1")
	ctx := context.Background()

	proj, err := c.CreateProject(ctx, "Hat", "")
	require.NoError(t, err)
	crown, err := c.CreateCounter(ctx, proj.ID, client.CounterSpec{
		Name:         "Decrease rounds",
		InitialValue: i64(10),
		MaxValue:     i64(10),
	})
	require.NoError(t, err)

	_, err = c.Increment(ctx, crown.ID, "")
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 409, apiErr.Status)
	require.Equal(t, "bounds_exceeded", apiErr.Code)

	// Display is back on the confirmed value and the UI got told why.
	v, _ := c.Tracker().Value(crown.ID)
	require.Equal(t, int64(10), v)

	n := nextNotice(t, c.Tracker())
	require.Equal(t, client.NoticeRejected, n.Kind)
	require.Equal(t, crown.ID, n.CounterID)
}

func TestClient_CascadePromotesLinkedCounter(t *testing.T) {
	c, _ := newClient(t, "phone-1")
	ctx := context.Background()

	proj, err := c.CreateProject(ctx, "Cabled Pullover", "")
	require.NoError(t, err)
	row, err := c.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Rows", InitialValue: i64(7)})
	require.NoError(t, err)
	cable, err := c.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Cable chart", InitialValue: i64(5)})
	require.NoError(t, err)

	_, err = c.RegisterLink(ctx, proj.ID, client.LinkSpec{
		SourceCounterID: row.ID,
		TargetCounterID: cable.ID,
		Type:            "reset_on_target",
		Condition:       &client.Condition{Operator: "equals", Value: 8},
		Action:          client.LinkAction{Type: "reset", Value: i64(1)},
	})
	require.NoError(t, err)

	res, err := c.Increment(ctx, row.ID, "")
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)

	// The cascaded reset reaches the tracker with the confirmation.
	v, _ := c.Tracker().Value(row.ID)
	require.Equal(t, int64(8), v)
	v, _ = c.Tracker().Value(cable.ID)
	require.Equal(t, int64(1), v)

	links, err := c.Links(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
}

func TestClient_UndoAbsorbsIntoTracker(t *testing.T) {
	c, _ := newClient(t, "phone-1")
	ctx := context.Background()

	proj, err := c.CreateProject(ctx, "Blanket", "")
	require.NoError(t, err)
	row, err := c.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Rows"})
	require.NoError(t, err)

	_, err = c.Increment(ctx, row.ID, "")
	require.NoError(t, err)
	second, err := c.Increment(ctx, row.ID, "")
	require.NoError(t, err)

	undone, err := c.Undo(ctx, second.Changes[0].EntryID, "missed a dropped stitch")
	require.NoError(t, err)
	require.Equal(t, "undo", undone.Entry.Action)

	v, _ := c.Tracker().Value(row.ID)
	require.Equal(t, int64(1), v)
}

func TestClient_UntrackedCounterStillMutates(t *testing.T) {
	c, ts := newClient(t, "phone-1")
	ctx := context.Background()

	proj, err := c.CreateProject(ctx, "Shared Shawl", "")
	require.NoError(t, err)
	row, err := c.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Rows"})
	require.NoError(t, err)

	// A second client that never fetched the project can still click.
	other := client.New(ts.Server.URL, ts.Token, "tablet-1")
	res, err := other.Increment(ctx, row.ID, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Counter.CurrentValue)

	_, ok := other.Tracker().Value(row.ID)
	require.False(t, ok)
}

func TestClient_SubscribeStreamsRemoteClicks(t *testing.T) {
	phone, ts := newClient(t, "phone-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proj, err := phone.CreateProject(ctx, "Socks", "")
	require.NoError(t, err)
	row, err := phone.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Rows"})
	require.NoError(t, err)

	// The tablet joins with no prior state; the snapshot seeds it.
	tablet := client.New(ts.Server.URL, ts.Token, "tablet-1")
	feed, err := tablet.Subscribe(ctx, proj.ID)
	require.NoError(t, err)
	defer feed.Close()

	v, ok := tablet.Tracker().Value(row.ID)
	require.True(t, ok)
	require.Equal(t, int64(0), v)

	_, err = phone.Increment(ctx, row.ID, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := tablet.Tracker().Value(row.ID)
		return v == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-feed.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on context cancel")
	}
}

func TestClient_SubscribeOwnEchoIsHarmless(t *testing.T) {
	phone, ts := newClient(t, "phone-1")
	ctx := context.Background()

	proj, err := phone.CreateProject(ctx, "Mittens", "")
	require.NoError(t, err)
	row, err := phone.CreateCounter(ctx, proj.ID, client.CounterSpec{Name: "Rows"})
	require.NoError(t, err)

	feed, err := phone.Subscribe(ctx, proj.ID)
	require.NoError(t, err)
	defer feed.Close()

	tablet := client.New(ts.Server.URL, ts.Token, "tablet-1")
	tabletFeed, err := tablet.Subscribe(ctx, proj.ID)
	require.NoError(t, err)
	defer tabletFeed.Close()

	_, err = phone.Increment(ctx, row.ID, "")
	require.NoError(t, err)

	// The tablet converges on the new value; the phone keeps its own
	// confirmed state even though its echo came back over the feed.
	require.Eventually(t, func() bool {
		v, _ := tablet.Tracker().Value(row.ID)
		return v == 1
	}, 2*time.Second, 10*time.Millisecond)

	v, _ := phone.Tracker().Value(row.ID)
	require.Equal(t, int64(1), v)
}

func TestClient_SubscribeUnknownProject(t *testing.T) {
	c, _ := newClient(t, "phone-1")

	_, err := c.Subscribe(context.Background(), "ghost")
	require.Error(t, err)
}
