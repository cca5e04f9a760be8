package ws

import (
	"time"

	"github.com/taskboard/task-events-service/internal/domain/event"
)

// Message types observed at the gateway/client boundary.
const (
	MsgAuthenticate    = "authenticate"
	MsgSubscribeTask   = "subscribe:task"
	MsgUnsubscribeTask = "unsubscribe:task"

	MsgAuthenticated = "authenticated"
	MsgSubscribed    = "subscribed"
	MsgTaskUpdate    = "task:update"
)

// ClientMessage is any inbound command. Fields beyond Type are
// populated depending on the command.
type ClientMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Token  string `json:"token,omitempty"`
	TaskID string `json:"taskId,omitempty"`
}

// AuthResult confirms or rejects authentication. A rejection is always
// followed by connection close; the gateway never leaves a connection
// silently unauthenticated.
type AuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SubscribeResult acknowledges a subscribe command, so clients can
// distinguish "never subscribed" from "missed delivery".
type SubscribeResult struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// TaskUpdate is the live notification pushed to subscribers.
type TaskUpdate struct {
	Type      string        `json:"type"`
	EventType event.Type    `json:"eventType"`
	TaskID    string        `json:"taskId"`
	Payload   event.Payload `json:"payload"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewTaskUpdate(env *event.Envelope) TaskUpdate {
	return TaskUpdate{
		Type:      MsgTaskUpdate,
		EventType: env.EventType,
		TaskID:    env.TaskID,
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	}
}
