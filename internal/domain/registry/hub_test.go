package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(
		WithMailboxSize(64),
		WithSendTimeout(100*time.Millisecond),
	)
	t.Cleanup(h.Shutdown)
	return h
}

func recvOne(t *testing.T, conn Connector) *event.Envelope {
	t.Helper()
	select {
	case env := <-conn.Recv():
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestHubSubscribeAndBroadcast(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 16)
	h.Register(conn)
	h.Subscribe(conn, "task-1")

	env := testEnvelope(t, "task-1")
	require.True(t, h.Broadcast(env))

	got := recvOne(t, conn)
	assert.Equal(t, env.EventID, got.EventID)
}

func TestHubBroadcastWithoutSubscribers(t *testing.T) {
	h := newTestHub(t)

	assert.False(t, h.Broadcast(testEnvelope(t, "task-unseen")))
	assert.False(t, h.Broadcast(nil))
}

func TestHubSubscriptionIsPerTask(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 16)
	other := NewConnector(context.Background(), "user-2", 16)
	h.Register(conn)
	h.Register(other)
	h.Subscribe(conn, "task-1")
	h.Subscribe(other, "task-2")

	require.True(t, h.Broadcast(testEnvelope(t, "task-1")))
	recvOne(t, conn)

	select {
	case env := <-other.Recv():
		t.Fatalf("unsubscribed connection received %s", env.EventID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 16)
	h.Register(conn)
	h.Subscribe(conn, "task-1")
	h.Unsubscribe(conn, "task-1")

	// Last subscriber left, so the cell is reclaimed and the broadcast
	// has nowhere to go.
	assert.False(t, h.Broadcast(testEnvelope(t, "task-1")))

	// Unsubscribing again is a no-op.
	h.Unsubscribe(conn, "task-1")
}

func TestHubDuplicateSubscribeIsIdempotent(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 16)
	h.Register(conn)
	h.Subscribe(conn, "task-1")
	h.Subscribe(conn, "task-1")

	require.True(t, h.Broadcast(testEnvelope(t, "task-1")))
	recvOne(t, conn)

	select {
	case env := <-conn.Recv():
		t.Fatalf("duplicate delivery of %s", env.EventID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDisconnectCleansEverySubscription(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 16)
	h.Register(conn)
	h.Subscribe(conn, "task-1")
	h.Subscribe(conn, "task-2")
	require.True(t, h.IsConnected(conn.GetID()))

	h.Disconnect(conn)

	assert.False(t, h.IsConnected(conn.GetID()))
	assert.False(t, h.Broadcast(testEnvelope(t, "task-1")))
	assert.False(t, h.Broadcast(testEnvelope(t, "task-2")))

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("disconnect should close the connection")
	}

	// Safe to repeat.
	h.Disconnect(conn)
}

func TestHubBroadcastOrderPerTask(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 64)
	h.Register(conn)
	h.Subscribe(conn, "task-1")

	var sent []string
	for i := 0; i < 20; i++ {
		env := testEnvelope(t, "task-1")
		sent = append(sent, env.EventID)
		require.True(t, h.Broadcast(env))
	}

	for i, want := range sent {
		got := recvOne(t, conn)
		require.Equalf(t, want, got.EventID, "delivery %d out of order", i)
	}
}

func TestHubFanOutToAllSubscribers(t *testing.T) {
	h := newTestHub(t)

	conns := make([]Connector, 3)
	for i := range conns {
		conns[i] = NewConnector(context.Background(), "user-1", 16)
		h.Register(conns[i])
		h.Subscribe(conns[i], "task-1")
	}

	env := testEnvelope(t, "task-1")
	require.True(t, h.Broadcast(env))

	for _, conn := range conns {
		got := recvOne(t, conn)
		assert.Equal(t, env.EventID, got.EventID)
	}
}

func TestHubIgnoresUnregisteredConnections(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-1", 16)
	h.Subscribe(conn, "task-1")

	assert.False(t, h.Broadcast(testEnvelope(t, "task-1")))
}

func TestHubSubscribeSurvivesConcurrentReclaim(t *testing.T) {
	h := newTestHub(t)

	// Churn one task key hard enough that subscribes overlap the cell
	// reclaim done by the last unsubscribe.
	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewConnector(context.Background(), "user-1", 16)
			h.Register(conn)
			for j := 0; j < 200; j++ {
				h.Subscribe(conn, "task-hot")
				h.Unsubscribe(conn, "task-hot")
			}
			h.Disconnect(conn)
		}()
	}
	wg.Wait()

	// After the churn the key must still be fully usable: a new
	// subscriber lands in a live cell and receives broadcasts.
	conn := NewConnector(context.Background(), "user-2", 16)
	h.Register(conn)
	h.Subscribe(conn, "task-hot")

	env := testEnvelope(t, "task-hot")
	require.True(t, h.Broadcast(env))
	got := recvOne(t, conn)
	assert.Equal(t, env.EventID, got.EventID)
}

func TestHubUserOf(t *testing.T) {
	h := newTestHub(t)

	conn := NewConnector(context.Background(), "user-42", 16)
	h.Register(conn)

	userID, ok := h.UserOf(conn.GetID())
	require.True(t, ok)
	assert.Equal(t, "user-42", userID)

	h.Disconnect(conn)
	_, ok = h.UserOf(conn.GetID())
	assert.False(t, ok)
}
