// Package client is a reconnecting websocket client for the task event
// gateway. It re-authenticates and re-subscribes after every reconnect,
// so callers only declare the tasks they care about once.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	msgAuthenticate    = "authenticate"
	msgSubscribeTask   = "subscribe:task"
	msgUnsubscribeTask = "unsubscribe:task"

	msgAuthenticated = "authenticated"
	msgSubscribed    = "subscribed"
	msgTaskUpdate    = "task:update"
)

// TaskUpdate is a live notification for a subscribed task.
type TaskUpdate struct {
	Type      string          `json:"type"`
	EventType string          `json:"eventType"`
	TaskID    string          `json:"taskId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type serverMessage struct {
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	UserID  string          `json:"userId"`
	TaskID  string          `json:"taskId"`
	Reason  string          `json:"reason"`
	Payload json.RawMessage `json:"payload"`

	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
}

type command struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Token  string `json:"token,omitempty"`
	TaskID string `json:"taskId,omitempty"`
}

// ErrAuthRejected is returned when the gateway refuses the credentials.
// It is terminal: retrying with the same token cannot succeed.
var ErrAuthRejected = errors.New("client: authentication rejected")

type Options struct {
	URL    string
	UserID string
	Token  string
	Retry  RetryPolicy
	Logger *slog.Logger

	// OnUpdate receives every task update. Called from the read loop,
	// so it must not block.
	OnUpdate func(TaskUpdate)

	// Registry, when set, additionally dispatches updates to per-task
	// handlers. The registry outlives individual connections.
	Registry *Registry

	// HandshakeTimeout bounds dialing plus the authentication exchange.
	HandshakeTimeout time.Duration
}

type Client struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	ws    *websocket.Conn
	tasks map[string]struct{}
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("client: url required")
	}
	if opts.Token == "" {
		return nil, errors.New("client: token required")
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		opts:   opts,
		logger: opts.Logger,
		tasks:  make(map[string]struct{}),
	}, nil
}

// Subscribe declares interest in a task. The subscription survives
// reconnects: it is replayed after every successful authentication.
func (c *Client) Subscribe(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[taskID] = struct{}{}
	if c.ws == nil {
		return nil
	}
	return c.ws.WriteJSON(command{Type: msgSubscribeTask, TaskID: taskID})
}

// Unsubscribe withdraws interest in a task.
func (c *Client) Unsubscribe(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, taskID)
	if c.ws == nil {
		return nil
	}
	return c.ws.WriteJSON(command{Type: msgUnsubscribeTask, TaskID: taskID})
}

// Run connects and keeps the session alive until ctx is cancelled, the
// retry budget is exhausted, or authentication is rejected.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := c.runOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrAuthRejected):
			return err
		}

		attempt++
		if c.opts.Retry.Exhausted(attempt) {
			return fmt.Errorf("client: giving up after %d attempts: %w", attempt, err)
		}

		delay := c.opts.Retry.NextDelay(attempt - 1)
		c.logger.Warn("connection lost, reconnecting",
			"attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	if err := c.handshake(ws); err != nil {
		return err
	}

	// Replay subscriptions before exposing the connection. Holding the
	// lock keeps Subscribe from interleaving writes with the replay.
	c.mu.Lock()
	for taskID := range c.tasks {
		if err := ws.WriteJSON(command{Type: msgSubscribeTask, TaskID: taskID}); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("resubscribe %s: %w", taskID, err)
		}
	}
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
	}()

	return c.readLoop(ctx, ws)
}

func (c *Client) handshake(ws *websocket.Conn) error {
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.HandshakeTimeout))
	defer ws.SetReadDeadline(time.Time{})

	auth := command{Type: msgAuthenticate, UserID: c.opts.UserID, Token: c.opts.Token}
	if err := ws.WriteJSON(auth); err != nil {
		return fmt.Errorf("send authenticate: %w", err)
	}

	var reply serverMessage
	if err := ws.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if reply.Type != msgAuthenticated {
		return fmt.Errorf("unexpected reply %q during handshake", reply.Type)
	}
	if !reply.Success {
		return fmt.Errorf("%w: %s", ErrAuthRejected, reply.Reason)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-done:
		}
	}()

	for {
		var msg serverMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case msgTaskUpdate:
			update := TaskUpdate{
				Type:      msg.Type,
				EventType: msg.EventType,
				TaskID:    msg.TaskID,
				Payload:   msg.Payload,
				Timestamp: msg.Timestamp,
			}
			if c.opts.OnUpdate != nil {
				c.opts.OnUpdate(update)
			}
			if c.opts.Registry != nil {
				c.opts.Registry.dispatch(update)
			}
		case msgSubscribed:
			if !msg.Success {
				c.logger.Warn("subscription rejected", "task_id", msg.TaskID, "reason", msg.Reason)
				c.mu.Lock()
				delete(c.tasks, msg.TaskID)
				c.mu.Unlock()
			}
		default:
			c.logger.Debug("unhandled server message", "type", msg.Type)
		}
	}
}
