package registry

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// Hubber is the gateway's registry of live connections and their task
// subscriptions.
type Hubber interface {
	Register(conn Connector)
	Subscribe(conn Connector, taskID string)
	Unsubscribe(conn Connector, taskID string)
	Broadcast(env *event.Envelope) bool
	Disconnect(conn Connector)
	IsConnected(connID uuid.UUID) bool
	UserOf(connID uuid.UUID) (string, bool)
	Shutdown()
}

// connSubs tracks which tasks one connection is attached to. Guarded by
// its own mutex so that subscription changes on one connection never
// serialize against broadcasts or other connections.
type connSubs struct {
	conn  Connector
	mu    sync.Mutex
	tasks map[string]struct{}
}

// Hub routes task updates to per-task Cells. Lookups are lock-free via
// sync.Map; mutation is fine-grained per task-key and per connection.
type Hub struct {
	// cells stores Map[taskID string]*Cell.
	cells sync.Map
	// conns stores Map[uuid.UUID]*connSubs, the identity map of
	// authenticated connections.
	conns sync.Map

	config       hubConfig
	janitorDone  chan struct{}
	shutdownOnce sync.Once
}

type hubConfig struct {
	mailboxSize      int
	sendTimeout      time.Duration
	idleTimeout      time.Duration
	evictionInterval time.Duration
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			mailboxSize:      2048,
			sendTimeout:      500 * time.Millisecond,
			idleTimeout:      30 * time.Minute,
			evictionInterval: 15 * time.Minute,
		},
		janitorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.janitor()
	return h
}

// Register binds an authenticated connection into the identity map.
// Subscriptions are added separately; a connection with no
// subscriptions receives nothing.
func (h *Hub) Register(conn Connector) {
	h.conns.Store(conn.GetID(), &connSubs{
		conn:  conn,
		tasks: make(map[string]struct{}),
	})
}

func (h *Hub) IsConnected(connID uuid.UUID) bool {
	_, ok := h.conns.Load(connID)
	return ok
}

// UserOf resolves the authenticated identity bound to a connection.
func (h *Hub) UserOf(connID uuid.UUID) (string, bool) {
	val, ok := h.conns.Load(connID)
	if !ok {
		return "", false
	}
	return val.(*connSubs).conn.GetUserID(), true
}

// Subscribe attaches the connection to the task's cell, creating the
// cell lazily on first interest. Unregistered connections are ignored.
func (h *Hub) Subscribe(conn Connector, taskID string) {
	val, ok := h.conns.Load(conn.GetID())
	if !ok {
		return
	}
	cs := val.(*connSubs)

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, already := cs.tasks[taskID]; already {
		return
	}

	// Attach can race a concurrent reclaim of the same cell (last
	// unsubscribe or janitor eviction). A stopped cell refuses the
	// attach; retry until the reclaimer removes it from the map and a
	// fresh cell can be stored.
	for {
		cellVal, ok := h.cells.Load(taskID)
		if !ok {
			fresh := NewCell(taskID, h.config.mailboxSize, h.config.sendTimeout)
			var loaded bool
			cellVal, loaded = h.cells.LoadOrStore(taskID, fresh)
			if loaded {
				fresh.Stop()
			}
		}
		if cellVal.(Celler).Attach(conn) {
			break
		}
		runtime.Gosched()
	}
	cs.tasks[taskID] = struct{}{}
}

// Unsubscribe removes interest in a task. Idempotent: unsubscribing
// from a task the connection never subscribed to is a no-op.
func (h *Hub) Unsubscribe(conn Connector, taskID string) {
	val, ok := h.conns.Load(conn.GetID())
	if !ok {
		return
	}
	cs := val.(*connSubs)

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, subscribed := cs.tasks[taskID]; !subscribed {
		return
	}
	delete(cs.tasks, taskID)
	h.detach(taskID, conn.GetID())
}

func (h *Hub) detach(taskID string, connID uuid.UUID) {
	if val, ok := h.cells.Load(taskID); ok {
		cell := val.(Celler)
		cell.Detach(connID)
		if cell.TryStop() {
			// Last subscriber left: reclaim the cell and its goroutine.
			h.cells.Delete(taskID)
		}
	}
}

// Broadcast routes a task update to the cell owning env.TaskID. Returns
// false on miss (no live subscribers) or mailbox overflow.
func (h *Hub) Broadcast(env *event.Envelope) bool {
	if env == nil || env.TaskID == "" {
		return false
	}
	if val, ok := h.cells.Load(env.TaskID); ok {
		return val.(Celler).Push(env)
	}
	return false
}

// Disconnect removes the connection from every task's subscriber set
// and from the identity map, then closes it. Always safe to call more
// than once.
func (h *Hub) Disconnect(conn Connector) {
	connID := conn.GetID()
	if val, loaded := h.conns.LoadAndDelete(connID); loaded {
		cs := val.(*connSubs)
		cs.mu.Lock()
		for taskID := range cs.tasks {
			h.detach(taskID, connID)
		}
		cs.tasks = make(map[string]struct{})
		cs.mu.Unlock()
	}
	conn.Close()
}

// janitor periodically reclaims cells that lost all subscribers without
// a clean detach path, e.g. after shedding.
func (h *Hub) janitor() {
	ticker := time.NewTicker(h.config.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.janitorDone:
			return
		case <-ticker.C:
			h.cells.Range(func(key, val any) bool {
				cell := val.(Celler)
				if cell.IsIdle(h.config.idleTimeout) && cell.TryStop() {
					h.cells.Delete(key)
				}
				return true
			})
		}
	}
}

// Shutdown stops the janitor, every cell goroutine and every live
// connection. The registry holds no durable state, so there is nothing
// to flush; reconnecting clients re-authenticate and re-subscribe.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.janitorDone)
		h.cells.Range(func(key, val any) bool {
			val.(Celler).Stop()
			h.cells.Delete(key)
			return true
		})
		h.conns.Range(func(key, val any) bool {
			val.(*connSubs).conn.Close()
			h.conns.Delete(key)
			return true
		})
	})
}
