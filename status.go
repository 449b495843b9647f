package nats

import "sync"

// Status is the user-visible connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusTLSHandshake
	StatusInfoHandshake
	StatusConnected
	StatusReconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusTLSHandshake:
		return "tls_handshake"
	case StatusInfoHandshake:
		return "info_handshake"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// statusBroadcaster fans out every state transition in order, replaying
// the current state to new subscribers first.
type statusBroadcaster struct {
	mu      sync.Mutex
	current Status
	subs    []chan Status
}

func newStatusBroadcaster(initial Status) *statusBroadcaster {
	return &statusBroadcaster{current: initial}
}

func (b *statusBroadcaster) set(s Status) {
	b.mu.Lock()
	b.current = s
	subs := b.subs
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			// Slow subscriber: drop the oldest buffered entry to make
			// room rather than block the connection's state machine.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (b *statusBroadcaster) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// subscribe registers a new listener and immediately replays the current
// state onto it.
func (b *statusBroadcaster) subscribe() chan Status {
	ch := make(chan Status, 16)
	b.mu.Lock()
	ch <- b.current
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *statusBroadcaster) unsubscribe(target chan Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Status returns the current connection state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StatusChan returns a channel replaying the current state and then
// every subsequent transition, in order. Callers should drain it
// promptly; slow readers drop older undelivered transitions.
func (c *Conn) StatusChan() <-chan Status {
	return c.statusBC.subscribe()
}

// WaitUntil blocks until the connection reaches the target state (or
// Closed, in which case it returns ErrConnectionClosed unless target
// itself is Closed).
func (c *Conn) WaitUntil(target Status) error {
	ch := c.statusBC.subscribe()
	defer c.statusBC.unsubscribe(ch)

	for s := range ch {
		if s == target {
			return nil
		}
		if s == StatusClosed && target != StatusClosed {
			return ErrConnectionClosed
		}
	}
	return ErrConnectionClosed
}
