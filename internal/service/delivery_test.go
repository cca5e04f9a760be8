package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/task-events-service/internal/domain/event"
	"github.com/taskboard/task-events-service/internal/domain/registry"
)

type fakeHub struct {
	registered   []registry.Connector
	subscribed   map[uuid.UUID][]string
	unsubscribed map[uuid.UUID][]string
	disconnected []uuid.UUID
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		subscribed:   make(map[uuid.UUID][]string),
		unsubscribed: make(map[uuid.UUID][]string),
	}
}

func (h *fakeHub) Register(conn registry.Connector) { h.registered = append(h.registered, conn) }

func (h *fakeHub) Subscribe(conn registry.Connector, taskID string) {
	h.subscribed[conn.GetID()] = append(h.subscribed[conn.GetID()], taskID)
}

func (h *fakeHub) Unsubscribe(conn registry.Connector, taskID string) {
	h.unsubscribed[conn.GetID()] = append(h.unsubscribed[conn.GetID()], taskID)
}

func (h *fakeHub) Broadcast(*event.Envelope) bool { return false }

func (h *fakeHub) Disconnect(conn registry.Connector) {
	h.disconnected = append(h.disconnected, conn.GetID())
	conn.Close()
}

func (h *fakeHub) IsConnected(uuid.UUID) bool { return false }

func (h *fakeHub) UserOf(uuid.UUID) (string, bool) { return "", false }

func (h *fakeHub) Shutdown() {}

type staticAuther struct {
	identity string
	err      error
}

func (a staticAuther) Verify(context.Context, string) (string, error) {
	return a.identity, a.err
}

type fakeAccess struct {
	owned map[string]string // taskID -> owning userID
	err   error
}

func (f fakeAccess) Owns(_ context.Context, userID, taskID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.owned[taskID] == userID, nil
}

func TestAuthenticateRegistersConnection(t *testing.T) {
	hub := newFakeHub()
	svc := NewDeliveryService(hub, staticAuther{identity: "user-1"}, fakeAccess{}, 16, false)

	conn, err := svc.Authenticate(context.Background(), "", "token")

	require.NoError(t, err)
	assert.Equal(t, "user-1", conn.GetUserID())
	require.Len(t, hub.registered, 1)
	assert.Equal(t, conn.GetID(), hub.registered[0].GetID())
}

func TestAuthenticateRejectsIdentityMismatch(t *testing.T) {
	hub := newFakeHub()
	svc := NewDeliveryService(hub, staticAuther{identity: "user-1"}, fakeAccess{}, 16, false)

	_, err := svc.Authenticate(context.Background(), "someone-else", "token")

	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Empty(t, hub.registered)
}

func TestAuthenticatePropagatesVerifyError(t *testing.T) {
	hub := newFakeHub()
	svc := NewDeliveryService(hub, staticAuther{err: ErrInvalidToken}, fakeAccess{}, 16, false)

	_, err := svc.Authenticate(context.Background(), "", "token")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, hub.registered)
}

func TestSubscribeEnforcesOwnership(t *testing.T) {
	hub := newFakeHub()
	access := fakeAccess{owned: map[string]string{"task-1": "user-1"}}
	svc := NewDeliveryService(hub, staticAuther{identity: "user-1"}, access, 16, true)

	conn, err := svc.Authenticate(context.Background(), "", "token")
	require.NoError(t, err)

	require.NoError(t, svc.Subscribe(context.Background(), conn, "task-1"))
	assert.Equal(t, []string{"task-1"}, hub.subscribed[conn.GetID()])

	err = svc.Subscribe(context.Background(), conn, "task-of-another-user")
	assert.ErrorIs(t, err, ErrNotTaskOwner)
	assert.Len(t, hub.subscribed[conn.GetID()], 1)
}

func TestSubscribeSkipsCheckWhenEnforcementOff(t *testing.T) {
	hub := newFakeHub()
	svc := NewDeliveryService(hub, staticAuther{identity: "user-1"}, fakeAccess{}, 16, false)

	conn, err := svc.Authenticate(context.Background(), "", "token")
	require.NoError(t, err)

	require.NoError(t, svc.Subscribe(context.Background(), conn, "any-task"))
	assert.Equal(t, []string{"any-task"}, hub.subscribed[conn.GetID()])
}

func TestSubscribeWrapsAccessError(t *testing.T) {
	hub := newFakeHub()
	boom := errors.New("db down")
	svc := NewDeliveryService(hub, staticAuther{identity: "user-1"}, fakeAccess{err: boom}, 16, true)

	conn, err := svc.Authenticate(context.Background(), "", "token")
	require.NoError(t, err)

	err = svc.Subscribe(context.Background(), conn, "task-1")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, hub.subscribed[conn.GetID()])
}

func TestUnsubscribeAndDisconnectDelegate(t *testing.T) {
	hub := newFakeHub()
	svc := NewDeliveryService(hub, staticAuther{identity: "user-1"}, fakeAccess{}, 16, false)

	conn, err := svc.Authenticate(context.Background(), "", "token")
	require.NoError(t, err)

	svc.Unsubscribe(conn, "task-1")
	svc.Disconnect(conn)

	assert.Equal(t, []string{"task-1"}, hub.unsubscribed[conn.GetID()])
	assert.Equal(t, []uuid.UUID{conn.GetID()}, hub.disconnected)
}
