package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// Interface guard
var _ Connector = (*connect)(nil)

// Connector is the contract the Hub and transport handlers share. It
// decouples subscription bookkeeping from the concrete WebSocket
// session and allows mocking in tests.
type Connector interface {
	GetID() uuid.UUID
	GetUserID() string
	// Send enqueues an update with backpressure handling; false means
	// the update was not accepted (connection closed or shed).
	Send(env *event.Envelope, timeout time.Duration) bool
	Recv() <-chan *event.Envelope
	// Done is closed when the connection is terminated, by either side.
	Done() <-chan struct{}
	Dropped() uint64
	Close()
}

// connect is the concrete implementation, unexported to force interface
// usage outside the package.
type connect struct {
	id        uuid.UUID
	userID    string
	createdAt time.Time
	ctx       context.Context
	cancelFn  context.CancelFunc

	// [MAILBOX] Bounded buffer that decouples per-task delivery loops
	// from the socket write pump. Its capacity is the backpressure
	// threshold for this single subscriber.
	sendCh chan *event.Envelope

	closeOnce    sync.Once
	droppedCount uint64 // atomic
}

// NewConnector binds an authenticated identity to a fresh connection.
func NewConnector(ctx context.Context, userID string, bufferSize int) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		userID:    userID,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan *event.Envelope, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID { return c.id }

func (c *connect) GetUserID() string { return c.userID }

// Send attempts to push an update into the session mailbox. It waits up
// to timeout for space, which smooths transient jitter; a buffer that
// stays full for the whole window marks a persistently slow consumer.
func (c *connect) Send(env *event.Envelope, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- env:
		return true
	case <-ctx.Done():
	}

	// [OVERFLOW] Drop the oldest buffered update to make room. The live
	// channel is a notification optimization, not the source of truth,
	// so shedding stale updates beats stalling every other subscriber.
	select {
	case <-c.sendCh:
		atomic.AddUint64(&c.droppedCount, 1)
	default:
	}

	select {
	case c.sendCh <- env:
		return true
	default:
		// Still saturated after eviction: give up on this connection
		// rather than let it hold the cell hostage.
		atomic.AddUint64(&c.droppedCount, 1)
		c.Close()
		return false
	}
}

func (c *connect) Recv() <-chan *event.Envelope { return c.sendCh }

func (c *connect) Done() <-chan struct{} { return c.ctx.Done() }

func (c *connect) Dropped() uint64 { return atomic.LoadUint64(&c.droppedCount) }

// Close terminates the connection. Safe to call any number of times
// from the Hub, the cell, or the transport handler. The send channel is
// deliberately never closed; consumers watch Done instead, which avoids
// racing a close against concurrent Send calls.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
