package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/stretchr/testify/require"
)

type stubAuthorizer struct {
	err error
}

func (a stubAuthorizer) AuthorizeProject(ctx context.Context, tenantID, projectID string) error {
	return a.err
}

func batch(projectID string, seqs ...int64) []broadcast.Event {
	events := make([]broadcast.Event, 0, len(seqs))
	for _, seq := range seqs {
		events = append(events, broadcast.Event{
			Seq:       seq,
			ProjectID: projectID,
			CounterID: "c1",
			Action:    "increment",
			At:        time.Now(),
		})
	}
	return events
}

func TestHub_PublishDelivers(t *testing.T) {
	ctx := context.Background()
	h := broadcast.NewHub(stubAuthorizer{}, 4, nil)
	defer h.Close()

	sub, err := h.Subscribe(ctx, "tenant1", "proj1")
	require.NoError(t, err)
	defer sub.Close()

	h.Publish("proj1", batch("proj1", 1, 2))

	select {
	case events := <-sub.Events():
		require.Len(t, events, 2)
		require.Equal(t, int64(1), events[0].Seq)
		require.Equal(t, int64(2), events[1].Seq)
	case <-time.After(time.Second):
		t.Fatal("batch not delivered")
	}
}

func TestHub_SubscribeUnauthorized(t *testing.T) {
	ctx := context.Background()
	h := broadcast.NewHub(stubAuthorizer{err: broadcast.ErrUnauthorized}, 4, nil)
	defer h.Close()

	_, err := h.Subscribe(ctx, "tenant1", "proj1")
	require.ErrorIs(t, err, broadcast.ErrUnauthorized)
}

func TestHub_ProjectIsolation(t *testing.T) {
	ctx := context.Background()
	h := broadcast.NewHub(stubAuthorizer{}, 4, nil)
	defer h.Close()

	socks, err := h.Subscribe(ctx, "tenant1", "socks")
	require.NoError(t, err)
	sweater, err := h.Subscribe(ctx, "tenant1", "sweater")
	require.NoError(t, err)

	h.Publish("socks", batch("socks", 1))

	select {
	case events := <-socks.Events():
		require.Equal(t, "socks", events[0].ProjectID)
	case <-time.After(time.Second):
		t.Fatal("batch not delivered")
	}
	require.Empty(t, sweater.Events())
}

func TestHub_SlowSubscriberDropsBatch(t *testing.T) {
	ctx := context.Background()
	h := broadcast.NewHub(stubAuthorizer{}, 1, nil)
	defer h.Close()

	sub, err := h.Subscribe(ctx, "tenant1", "proj1")
	require.NoError(t, err)

	// The buffer holds one batch; the second is dropped, not queued behind
	// a blocked send.
	h.Publish("proj1", batch("proj1", 1))
	h.Publish("proj1", batch("proj1", 2))

	events := <-sub.Events()
	require.Equal(t, int64(1), events[0].Seq)
	require.Empty(t, sub.Events())
}

func TestHub_ContextCancelUnsubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := broadcast.NewHub(stubAuthorizer{}, 4, nil)
	defer h.Close()

	sub, err := h.Subscribe(ctx, "tenant1", "proj1")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-sub.Events():
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}

	// Publishing to the now-empty project must not panic or block.
	h.Publish("proj1", batch("proj1", 1))
}

func TestHub_Close(t *testing.T) {
	ctx := context.Background()
	h := broadcast.NewHub(stubAuthorizer{}, 4, nil)

	sub, err := h.Subscribe(ctx, "tenant1", "proj1")
	require.NoError(t, err)

	h.Close()

	_, open := <-sub.Events()
	require.False(t, open)

	_, err = h.Subscribe(ctx, "tenant1", "proj1")
	require.ErrorIs(t, err, broadcast.ErrHubClosed)

	// Closing again is a no-op.
	h.Close()
}

func TestHub_SubscriptionCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	h := broadcast.NewHub(stubAuthorizer{}, 4, nil)
	defer h.Close()

	sub, err := h.Subscribe(ctx, "tenant1", "proj1")
	require.NoError(t, err)

	sub.Close()
	sub.Close()
}
