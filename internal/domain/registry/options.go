package registry

import "time"

// Option is a functional configuration type for the Hub.
type Option func(*Hub)

// WithMailboxSize sets the per-task cell mailbox capacity, the
// backpressure threshold between the broker consumer and delivery.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithSendTimeout bounds how long a cell waits on one subscriber's
// buffer before the overflow policy kicks in.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sendTimeout = d
	}
}

// WithIdleTimeout defines the quiet period after which a subscriberless
// cell is eligible for eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.idleTimeout = d
	}
}

// WithEvictionInterval configures how often the janitor runs.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.config.evictionInterval = d
	}
}
