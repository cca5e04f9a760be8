package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/internal/domain/registry"
	"github.com/taskboard/task-events-service/internal/service"
	"golang.org/x/sync/errgroup"
)

// Gateway upgrades client connections and drives the per-connection
// state machine: Connected (unauthenticated) -> Authenticated ->
// Subscribed(taskId...) -> Closed. A connection that does not
// authenticate within the configured window, or whose credentials are
// rejected, goes straight to Closed.
type Gateway struct {
	logger       *slog.Logger
	deliverer    service.Deliverer
	upgrader     websocket.Upgrader
	authWindow   time.Duration
	writeTimeout time.Duration
}

func NewGateway(logger *slog.Logger, deliverer service.Deliverer, cfg *config.Config) *Gateway {
	return &Gateway{
		logger:       logger,
		deliverer:    deliverer,
		authWindow:   cfg.Auth.Window,
		writeTimeout: cfg.Gateway.WriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the fronting proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// session serializes all writes to one socket. The write pump and
// command acknowledgments would otherwise race on the transport.
type session struct {
	ws           *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (s *session) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.ws.WriteJSON(v)
}

func (s *session) closeWithReason(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.ws.Close()
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer socket.Close()

	sess := &session{ws: socket, writeTimeout: g.writeTimeout}

	conn, ok := g.authenticate(r, sess)
	if !ok {
		return
	}
	defer g.deliverer.Disconnect(conn)

	g.logger.Info("connection authenticated",
		"conn_id", conn.GetID(), "user_id", conn.GetUserID(), "remote", r.RemoteAddr)

	eg, ctx := errgroup.WithContext(r.Context())
	eg.Go(func() error { return g.writePump(ctx, sess, conn) })
	eg.Go(func() error { return g.readPump(ctx, sess, conn) })
	eg.Go(func() error {
		// Unblock the read pump when either side tears the session
		// down: a pump error (via ctx) or the hub closing the
		// connection after shedding.
		select {
		case <-ctx.Done():
		case <-conn.Done():
		}
		_ = socket.Close()
		return nil
	})

	if err := eg.Wait(); err != nil && !isExpectedClose(err) {
		g.logger.Debug("connection closed",
			"conn_id", conn.GetID(), "user_id", conn.GetUserID(),
			"dropped", conn.Dropped(), "error", err)
	}
}

// authenticate runs the bounded Connected->Authenticated transition.
// Every failure path sends an explicit rejection or close reason; the
// connection never stays silently unauthenticated.
func (g *Gateway) authenticate(r *http.Request, sess *session) (registry.Connector, bool) {
	_ = sess.ws.SetReadDeadline(time.Now().Add(g.authWindow))

	var first ClientMessage
	if err := sess.ws.ReadJSON(&first); err != nil {
		sess.closeWithReason(websocket.ClosePolicyViolation, "authentication window expired")
		return nil, false
	}
	if first.Type != MsgAuthenticate {
		_ = sess.write(AuthResult{Type: MsgAuthenticated, Success: false, Reason: "authenticate required"})
		sess.closeWithReason(websocket.ClosePolicyViolation, "authenticate required")
		return nil, false
	}

	conn, err := g.deliverer.Authenticate(r.Context(), first.UserID, first.Token)
	if err != nil {
		g.logger.Warn("authentication rejected", "remote", r.RemoteAddr, "error", err)
		_ = sess.write(AuthResult{Type: MsgAuthenticated, Success: false, Reason: "invalid credentials"})
		sess.closeWithReason(websocket.ClosePolicyViolation, "authentication failed")
		return nil, false
	}

	_ = sess.ws.SetReadDeadline(time.Time{})
	if err := sess.write(AuthResult{Type: MsgAuthenticated, Success: true, UserID: conn.GetUserID()}); err != nil {
		g.deliverer.Disconnect(conn)
		return nil, false
	}
	return conn, true
}

// readPump handles subscribe/unsubscribe commands for one connection.
// Commands on the same connection are serialized here by construction.
func (g *Gateway) readPump(ctx context.Context, sess *session, conn registry.Connector) error {
	for {
		var msg ClientMessage
		if err := sess.ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case MsgSubscribeTask:
			res := SubscribeResult{Type: MsgSubscribed, TaskID: msg.TaskID, Success: true}
			if err := g.deliverer.Subscribe(ctx, conn, msg.TaskID); err != nil {
				res.Success = false
				res.Reason = subscribeFailureReason(err)
				g.logger.Warn("subscribe rejected",
					"conn_id", conn.GetID(), "user_id", conn.GetUserID(),
					"task_id", msg.TaskID, "error", err)
			}
			if err := sess.write(res); err != nil {
				return fmt.Errorf("write ack: %w", err)
			}

		case MsgUnsubscribeTask:
			g.deliverer.Unsubscribe(conn, msg.TaskID)

		case MsgAuthenticate:
			// Already authenticated; ignore rather than rebind.

		default:
			g.logger.Debug("unknown command ignored", "conn_id", conn.GetID(), "type", msg.Type)
		}
	}
}

// writePump drains the connection mailbox onto the socket. A transport
// write failure is a disconnect, not an application error: returning
// here cancels the group and the deferred Disconnect scrubs the
// connection from every subscription set.
func (g *Gateway) writePump(ctx context.Context, sess *session, conn registry.Connector) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return nil
		case env := <-conn.Recv():
			if env == nil {
				continue
			}
			if err := sess.write(NewTaskUpdate(env)); err != nil {
				return fmt.Errorf("write update: %w", err)
			}
		}
	}
}

func subscribeFailureReason(err error) string {
	if errors.Is(err, service.ErrNotTaskOwner) {
		return "not task owner"
	}
	return "subscription failed"
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
