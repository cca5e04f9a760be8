package client

import "sync"

// Registry routes task updates to per-task handlers. It is independent
// of any single connection: handlers registered here survive reconnects
// and keep firing once the session is re-established. Safe for
// concurrent use; registration may happen before or during Run.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]func(TaskUpdate)
	fallback []func(TaskUpdate)
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]func(TaskUpdate))}
}

// Handle registers a handler for updates of one task.
func (r *Registry) Handle(taskID string, fn func(TaskUpdate)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskID] = append(r.handlers[taskID], fn)
}

// HandleAny registers a handler receiving every update, including those
// for tasks without a dedicated handler.
func (r *Registry) HandleAny(fn func(TaskUpdate)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = append(r.fallback, fn)
}

// Remove drops all handlers for a task.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, taskID)
}

func (r *Registry) dispatch(u TaskUpdate) {
	r.mu.RLock()
	targeted := r.handlers[u.TaskID]
	fallback := r.fallback
	r.mu.RUnlock()

	for _, fn := range targeted {
		fn(u)
	}
	for _, fn := range fallback {
		fn(u)
	}
}
