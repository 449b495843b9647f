package nats

import (
	"time"

	"github.com/sty-holdings/dart-to-nats/nuid"
)

// requester holds the shared-inbox state backing Request/RequestMsg. A
// single mutex serializes requests because they share one in-flight slot
// against the inbox subscription.
type requester struct {
	mu       chan struct{} // 1-buffered channel used as a cancellable mutex
	root     string
	sub      *Subscription
	used     bool
	idgen    *nuid.NUID
}

func newRequester() *requester {
	r := &requester{mu: make(chan struct{}, 1)}
	r.mu <- struct{}{}
	return r
}

func (r *requester) lock()   { <-r.mu }
func (r *requester) unlock() { r.mu <- struct{}{} }

// Request publishes payload to subject and blocks for a single reply
// under the shared inbox subscription.
func (c *Conn) Request(subject string, payload []byte, timeout time.Duration) (*Msg, error) {
	return c.requestWithHeader(subject, nil, payload, timeout)
}

// RequestMsg is Request with an attached Header.
func (c *Conn) RequestMsg(subject string, header *Header, payload []byte, timeout time.Duration) (*Msg, error) {
	return c.requestWithHeader(subject, header, payload, timeout)
}

func (c *Conn) requestWithHeader(subject string, header *Header, payload []byte, timeout time.Duration) (*Msg, error) {
	c.req.lock()
	defer c.req.unlock()

	if err := c.ensureInbox(); err != nil {
		return nil, err
	}
	c.req.used = true

	leaf := c.req.root + "." + c.req.idgen.Next()

	if _, err := c.publish(subject, leaf, header, payload, true); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-c.req.sub.Msgs():
			if !ok {
				return nil, ErrConnectionClosed
			}
			if msg.Subject != leaf {
				// Belongs to a stale request sharing the inbox root.
				continue
			}
			return msg, nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-c.closedCh:
			return nil, ErrConnectionClosed
		}
	}
}

// ensureInbox creates the shared inbox subscription on first use. Must be
// called with req.mu held (via lock/unlock above).
func (c *Conn) ensureInbox() error {
	if c.req.sub != nil {
		return nil
	}

	prefix := c.opts.InboxPrefix
	root := prefix
	if prefix == defaultInboxPrefix {
		// The default prefix is shared across every client in a process;
		// append a client-unique NUID so concurrent clients never
		// collide.
		root = prefix + "." + c.idgen.Next()
	}
	c.req.root = root
	c.req.idgen = nuid.New()

	sub, err := c.Subscribe(root + ".>")
	if err != nil {
		return err
	}
	c.req.sub = sub
	return nil
}

// SetInboxPrefix overrides the default request/reply inbox root. It must
// be called before the first Request call.
func (c *Conn) SetInboxPrefix(prefix string) error {
	c.req.lock()
	defer c.req.unlock()
	if c.req.used || c.req.sub != nil {
		return ErrInboxPrefixLocked
	}
	c.opts.InboxPrefix = prefix
	return nil
}
