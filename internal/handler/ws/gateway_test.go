package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/internal/domain/event"
	"github.com/taskboard/task-events-service/internal/domain/registry"
	"github.com/taskboard/task-events-service/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type allowAllAccess struct{}

func (allowAllAccess) Owns(context.Context, string, string) (bool, error) { return true, nil }

type ownAccess struct {
	owner string
}

func (a ownAccess) Owns(_ context.Context, userID, _ string) (bool, error) {
	return userID == a.owner, nil
}

type gatewayFixture struct {
	hub    *registry.Hub
	server *httptest.Server
}

func newGatewayFixture(t *testing.T, access service.TaskAccess, enforce bool) *gatewayFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := registry.NewHub(
		registry.WithMailboxSize(64),
		registry.WithSendTimeout(100*time.Millisecond),
	)
	t.Cleanup(hub.Shutdown)

	auther := service.NewJWTAuther(testSecret)
	deliverer := service.NewDeliveryService(hub, auther, access, 64, enforce)

	cfg := &config.Config{}
	cfg.Auth.Window = 2 * time.Second
	cfg.Gateway.WriteTimeout = 2 * time.Second

	gateway := NewGateway(logger, deliverer, cfg)
	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)

	return &gatewayFixture{hub: hub, server: server}
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func authenticate(t *testing.T, ws *websocket.Conn, userID string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(ClientMessage{
		Type:   MsgAuthenticate,
		UserID: userID,
		Token:  signToken(t, userID),
	}))

	var reply AuthResult
	require.NoError(t, ws.ReadJSON(&reply))
	require.Equal(t, MsgAuthenticated, reply.Type)
	require.True(t, reply.Success)
	require.Equal(t, userID, reply.UserID)
}

func subscribe(t *testing.T, ws *websocket.Conn, taskID string) SubscribeResult {
	t.Helper()
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: MsgSubscribeTask, TaskID: taskID}))

	var ack SubscribeResult
	require.NoError(t, ws.ReadJSON(&ack))
	require.Equal(t, MsgSubscribed, ack.Type)
	return ack
}

func broadcastEventually(t *testing.T, hub *registry.Hub, env *event.Envelope) {
	t.Helper()
	// The subscribe ack races the hub attach only in the test's view;
	// poll briefly until the cell exists.
	require.Eventually(t, func() bool {
		return hub.Broadcast(env)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayAuthenticateSubscribeReceive(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)
	ws := f.dial(t)

	authenticate(t, ws, "user-1")
	ack := subscribe(t, ws, "task-1")
	require.True(t, ack.Success)

	env, err := event.NewEnvelope(event.TaskUpdated, "user-1", "task-1", "todo-api", event.Payload{})
	require.NoError(t, err)
	broadcastEventually(t, f.hub, env)

	var update TaskUpdate
	require.NoError(t, ws.ReadJSON(&update))
	assert.Equal(t, MsgTaskUpdate, update.Type)
	assert.Equal(t, event.TaskUpdated, update.EventType)
	assert.Equal(t, "task-1", update.TaskID)
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)
	ws := f.dial(t)

	require.NoError(t, ws.WriteJSON(ClientMessage{
		Type:  MsgAuthenticate,
		Token: "garbage",
	}))

	var reply AuthResult
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, MsgAuthenticated, reply.Type)
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Reason)

	// The gateway closes right after the rejection.
	var next AuthResult
	err := ws.ReadJSON(&next)
	assert.Error(t, err)
}

func TestGatewayRejectsIdentityMismatch(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)
	ws := f.dial(t)

	require.NoError(t, ws.WriteJSON(ClientMessage{
		Type:   MsgAuthenticate,
		UserID: "impostor",
		Token:  signToken(t, "user-1"),
	}))

	var reply AuthResult
	require.NoError(t, ws.ReadJSON(&reply))
	assert.False(t, reply.Success)
}

func TestGatewayRequiresAuthenticateFirst(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)
	ws := f.dial(t)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: MsgSubscribeTask, TaskID: "task-1"}))

	var reply AuthResult
	require.NoError(t, ws.ReadJSON(&reply))
	assert.False(t, reply.Success)
	assert.Equal(t, "authenticate required", reply.Reason)
}

func TestGatewayRejectsForeignTaskSubscription(t *testing.T) {
	f := newGatewayFixture(t, ownAccess{owner: "owner"}, true)
	ws := f.dial(t)

	authenticate(t, ws, "intruder")
	ack := subscribe(t, ws, "task-1")

	assert.False(t, ack.Success)
	assert.Equal(t, "not task owner", ack.Reason)
}

func TestGatewayUnsubscribeStopsUpdates(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)
	ws := f.dial(t)

	authenticate(t, ws, "user-1")
	require.True(t, subscribe(t, ws, "task-1").Success)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: MsgUnsubscribeTask, TaskID: "task-1"}))

	// After the unsubscribe lands, broadcasts have no subscriber.
	env, err := event.NewEnvelope(event.TaskUpdated, "user-1", "task-1", "todo-api", event.Payload{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !f.hub.Broadcast(env)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayDisconnectCleansSubscriptions(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)
	ws := f.dial(t)

	authenticate(t, ws, "user-1")
	require.True(t, subscribe(t, ws, "task-1").Success)
	ws.Close()

	env, err := event.NewEnvelope(event.TaskUpdated, "user-1", "task-1", "todo-api", event.Payload{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !f.hub.Broadcast(env)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayIsolatesSubscribers(t *testing.T) {
	f := newGatewayFixture(t, allowAllAccess{}, false)

	first := f.dial(t)
	authenticate(t, first, "user-1")
	require.True(t, subscribe(t, first, "task-1").Success)

	second := f.dial(t)
	authenticate(t, second, "user-2")
	require.True(t, subscribe(t, second, "task-2").Success)

	env, err := event.NewEnvelope(event.TaskUpdated, "user-1", "task-1", "todo-api", event.Payload{})
	require.NoError(t, err)
	broadcastEventually(t, f.hub, env)

	var update TaskUpdate
	require.NoError(t, first.ReadJSON(&update))
	assert.Equal(t, "task-1", update.TaskID)

	_ = second.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var stray TaskUpdate
	err = second.ReadJSON(&stray)
	assert.Error(t, err, "subscriber of another task must not receive the update")
}
