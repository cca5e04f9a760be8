package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskboard/task-events-service/internal/domain/registry"
)

// TaskAccess answers whether a user may watch a task. Backed by the
// relational store the CRUD API owns; a nil-error false means the task
// belongs to someone else or does not exist at all. The gateway does
// not distinguish the two.
type TaskAccess interface {
	Owns(ctx context.Context, userID, taskID string) (bool, error)
}

// Deliverer is the primary interface transport handlers use to manage
// connection lifecycle and subscriptions.
type Deliverer interface {
	// Authenticate verifies credentials and, on success, returns a
	// registered connection bound to the user's identity.
	Authenticate(ctx context.Context, userID, token string) (registry.Connector, error)
	Subscribe(ctx context.Context, conn registry.Connector, taskID string) error
	Unsubscribe(conn registry.Connector, taskID string)
	Disconnect(conn registry.Connector)
}

var (
	ErrIdentityMismatch = errors.New("delivery: token identity does not match claimed userId")
	ErrNotTaskOwner     = errors.New("delivery: task is not owned by the authenticated user")
)

type DeliveryService struct {
	hub        registry.Hubber
	auther     Auther
	access     TaskAccess
	sendBuffer int
	// enforceOwnership gates the subscribe-time ownership check.
	enforceOwnership bool
}

func NewDeliveryService(hub registry.Hubber, auther Auther, access TaskAccess, sendBuffer int, enforceOwnership bool) *DeliveryService {
	return &DeliveryService{
		hub:              hub,
		auther:           auther,
		access:           access,
		sendBuffer:       sendBuffer,
		enforceOwnership: enforceOwnership,
	}
}

// Authenticate delegates token verification, requires any claimed
// userId to match the token identity, and binds the connection into the
// hub's identity map. The caller owns closing the connection on error.
func (s *DeliveryService) Authenticate(ctx context.Context, userID, token string) (registry.Connector, error) {
	identity, err := s.auther.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if userID != "" && userID != identity {
		return nil, ErrIdentityMismatch
	}

	conn := registry.NewConnector(ctx, identity, s.sendBuffer)
	s.hub.Register(conn)
	return conn, nil
}

// Subscribe adds the connection to the task's subscriber set, after the
// ownership check when enforcement is on.
func (s *DeliveryService) Subscribe(ctx context.Context, conn registry.Connector, taskID string) error {
	if s.enforceOwnership {
		owns, err := s.access.Owns(ctx, conn.GetUserID(), taskID)
		if err != nil {
			return fmt.Errorf("delivery: ownership check: %w", err)
		}
		if !owns {
			return ErrNotTaskOwner
		}
	}
	s.hub.Subscribe(conn, taskID)
	return nil
}

// Unsubscribe is idempotent; removing a membership that does not exist
// is a no-op.
func (s *DeliveryService) Unsubscribe(conn registry.Connector, taskID string) {
	s.hub.Unsubscribe(conn, taskID)
}

// Disconnect tears the connection out of every subscriber set and the
// identity map. Safe to call multiple times.
func (s *DeliveryService) Disconnect(conn registry.Connector) {
	s.hub.Disconnect(conn)
}
