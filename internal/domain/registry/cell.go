package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// Celler defines the internal API for per-task delivery units.
type Celler interface {
	Push(env *event.Envelope) bool
	// Attach reports false when the cell has already been stopped, so
	// a subscriber never lands in a cell that delivery has left.
	Attach(conn Connector) bool
	Detach(connID uuid.UUID)
	IsIdle(timeout time.Duration) bool
	// TryStop stops the cell only if it has no sessions. The emptiness
	// check and the stop are atomic, which is what closes the window
	// between a reclaim decision and a concurrent attach.
	TryStop() bool
	Stop()
}

// Cell implements isolated delivery for a single task. One goroutine
// drains the mailbox, which is what guarantees that every subscriber of
// this task observes updates in broadcast order.
type Cell struct {
	taskID string

	// [MAILBOX] Decouples the Hub (and the broker consumer behind it)
	// from individual subscriber delivery.
	mailbox chan *event.Envelope

	// [SESSIONS] All live connections currently interested in this
	// task. RWMutex because delivery reads vastly outnumber
	// subscribe/unsubscribe writes.
	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	sendTimeout time.Duration

	doneCh         chan struct{}
	stopOnce       sync.Once
	stopped        bool // guarded by mu
	lastActivityAt time.Time
}

func NewCell(taskID string, mailboxSize int, sendTimeout time.Duration) *Cell {
	c := &Cell{
		taskID:         taskID,
		mailbox:        make(chan *event.Envelope, mailboxSize),
		sessions:       make(map[uuid.UUID]Connector),
		sendTimeout:    sendTimeout,
		doneCh:         make(chan struct{}),
		lastActivityAt: time.Now(),
	}
	go c.loop()
	return c
}

// IsIdle reports whether the cell has no subscribers and has been quiet
// longer than timeout, which makes it eligible for eviction.
func (c *Cell) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions) == 0 && time.Since(c.lastActivityAt) > timeout
}

func (c *Cell) touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()
}

// Push enqueues an update for delivery. False means the mailbox is full
// and the update was shed at the cell boundary.
func (c *Cell) Push(env *event.Envelope) bool {
	c.touch()
	select {
	case c.mailbox <- env:
		return true
	default:
		return false
	}
}

func (c *Cell) Attach(conn Connector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.lastActivityAt = time.Now()
	c.sessions[conn.GetID()] = conn
	return true
}

func (c *Cell) Detach(connID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, connID)
	c.lastActivityAt = time.Now()
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case env := <-c.mailbox:
			c.deliver(env)
		}
	}
}

func (c *Cell) deliver(env *event.Envelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, conn := range c.sessions {
		// A false return is connection-local: the subscriber is either
		// closed or shedding. Membership cleanup is driven by the
		// transport handler observing Done, never from inside delivery.
		conn.Send(env, c.sendTimeout)
	}
}

// TryStop stops the cell if and only if no session is attached. Returns
// whether the cell was stopped by this call.
func (c *Cell) TryStop() bool {
	c.mu.Lock()
	if c.stopped || len(c.sessions) > 0 {
		c.mu.Unlock()
		return false
	}
	c.stopped = true
	c.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.doneCh)
	})
	return true
}

// Stop terminates the delivery loop unconditionally. Used on shutdown;
// the reclaim paths go through TryStop.
func (c *Cell) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.doneCh)
	})
}
