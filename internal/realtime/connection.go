package realtime

import (
	"sync"

	"github.com/campusconnect/backend/internal/presence"
	"golang.org/x/time/rate"
)

type connectionState int

const (
	stateUnauthenticated connectionState = iota
	stateAuthenticated
	stateClosed
)

// Connection is the server side of one client channel. Outbound events are queued on a
// bounded buffer drained by the transport; a full buffer drops the event.
type Connection struct {
	id       int64
	outbound chan Frame
	done     chan struct{}
	limiter  *rate.Limiter

	mu           sync.Mutex
	state        connectionState
	registration presence.Registration
}

func newConnection(id int64, buffer int, limiter *rate.Limiter) *Connection {
	return &Connection{
		id:       id,
		outbound: make(chan Frame, buffer),
		done:     make(chan struct{}),
		limiter:  limiter,
	}
}

// Deliver queues an event without blocking. It reports false when the connection is
// closed or its queue is full.
func (c *Connection) Deliver(event string, payload interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- Frame{Event: event, Data: payload}:
		return true
	default:
		return false
	}
}

// Outbound exposes queued frames to the transport.
func (c *Connection) Outbound() <-chan Frame {
	return c.outbound
}

// Done is closed once the connection reaches its closed state.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// UserID returns the authenticated user, or "" before authentication.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registration.UserID()
}

// Closed reports whether the connection stopped processing events.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

func (c *Connection) currentState() (connectionState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.registration.UserID()
}

func (c *Connection) authenticated(registration presence.Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	c.state = stateAuthenticated
	c.registration = registration
}

func (c *Connection) currentRegistration() presence.Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registration
}

// close moves the connection to its terminal state and returns the registration it held.
// ok is false when the connection was already closed.
func (c *Connection) close() (registration presence.Registration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return presence.Registration{}, false
	}
	c.state = stateClosed
	registration = c.registration
	c.registration = presence.Registration{}
	close(c.done)
	return registration, true
}

func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}
