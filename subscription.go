package nats

import "fmt"

// Subscription represents interest in a subject, optionally shared across
// a queue group. Messages matching Subject are pushed onto the channel
// returned by Msgs() until Unsubscribe is called or the connection
// closes.
type Subscription struct {
	sid     uint64
	subject string
	queue   string

	msgs chan *Msg

	installed bool // true once SUB has actually been sent to the server
	conn      *Conn
}

// Subject returns the subscription's subject filter.
func (s *Subscription) Subject() string { return s.subject }

// Queue returns the queue group name, or "" for a non-queue subscription.
func (s *Subscription) Queue() string { return s.queue }

// Sid returns the client-assigned subscription id.
func (s *Subscription) Sid() uint64 { return s.sid }

// Msgs returns the channel messages are delivered on.
func (s *Subscription) Msgs() <-chan *Msg { return s.msgs }

// Unsubscribe removes interest in the subject and closes the delivery
// channel. Calling it twice is safe; the second call returns false.
func (s *Subscription) Unsubscribe() bool {
	if s.conn == nil {
		return false
	}
	return s.conn.unsubscribe(s.sid)
}

// registry is the subscription-id -> Subscription map plus the
// installed-on-server bookkeeping. It is always accessed under Conn.mu.
type registry struct {
	nextSid uint64
	subs    map[uint64]*Subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[uint64]*Subscription)}
}

// allocate assigns a new, strictly increasing sid and registers the
// subscription. Must be called with Conn.mu held.
func (r *registry) allocate(subject, queue string, bufSize int) *Subscription {
	r.nextSid++
	sub := &Subscription{
		sid:     r.nextSid,
		subject: subject,
		queue:   queue,
		msgs:    make(chan *Msg, bufSize),
	}
	r.subs[sub.sid] = sub
	return sub
}

// get returns the subscription for sid, or nil if it is not registered
//.
func (r *registry) get(sid uint64) *Subscription {
	return r.subs[sid]
}

// remove deletes sid from the registry, returning the removed
// subscription (nil if it was already gone).
func (r *registry) remove(sid uint64) *Subscription {
	sub := r.subs[sid]
	delete(r.subs, sid)
	return sub
}

// markAllUninstalled clears installed_on_server for every subscription,
// called on transport loss.
func (r *registry) markAllUninstalled() {
	for _, s := range r.subs {
		s.installed = false
	}
}

func subProtoLine(subject, queue string, sid uint64) string {
	if queue == "" {
		return fmt.Sprintf("SUB %s %d\r\n", subject, sid)
	}
	return fmt.Sprintf("SUB %s %s %d\r\n", subject, queue, sid)
}

func unsubProtoLine(sid uint64, maxMsgs int) string {
	if maxMsgs > 0 {
		return fmt.Sprintf("UNSUB %d %d\r\n", sid, maxMsgs)
	}
	return fmt.Sprintf("UNSUB %d\r\n", sid)
}
