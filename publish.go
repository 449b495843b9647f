package nats

import "fmt"

// pendingPub is a buffered (subject, payload, reply_to, header) tuple
// held until the connection comes up.
type pendingPub struct {
	subject string
	reply   string
	header  *Header
	data    []byte
}

func (p pendingPub) size() int64 { return int64(len(p.subject) + len(p.reply) + len(p.data)) }

// Publish sends data to subject with no reply-to and no header. See
// PublishRequest and PublishMsg for the fuller forms.
func (c *Conn) Publish(subject string, data []byte) error {
	_, err := c.publish(subject, "", nil, data, true)
	return err
}

// PublishRequest publishes data to subject, asking replies to be sent to
// reply. Request uses this internally with a generated inbox leaf.
func (c *Conn) PublishRequest(subject, reply string, data []byte) error {
	_, err := c.publish(subject, reply, nil, data, true)
	return err
}

// PublishMsg publishes the subject/reply/header/data carried by m.
func (c *Conn) PublishMsg(m *Msg) error {
	_, err := c.publish(m.Subject, m.Reply, m.Header, m.Data, true)
	return err
}

// PublishNoBuffer behaves like Publish but fails immediately with
// ErrDisconnected instead of buffering when not connected.
func (c *Conn) PublishNoBuffer(subject string, data []byte) error {
	_, err := c.publish(subject, "", nil, data, false)
	return err
}

// publish is the shared implementation behind Publish/PublishRequest/
// PublishMsg/PublishNoBuffer. The returned bool mirrors the verbose-mode
// ack result (true when not in verbose mode, since there is nothing to
// wait for).
func (c *Conn) publish(subject, reply string, header *Header, data []byte, bufferIfDisconnected bool) (bool, error) {
	c.mu.Lock()
	if c.status != StatusConnected {
		defer c.mu.Unlock()
		if c.status == StatusClosed {
			return false, ErrConnectionClosed
		}
		if !bufferIfDisconnected {
			return false, ErrDisconnected
		}
		return true, c.bufferPublish(subject, reply, header, data)
	}
	c.mu.Unlock()

	return c.writePublish(subject, reply, header, data)
}

// bufferPublish appends to the pending-publish buffer. Must be called
// with Conn.mu held.
func (c *Conn) bufferPublish(subject, reply string, header *Header, data []byte) error {
	p := pendingPub{subject: subject, reply: reply, header: header, data: data}
	if c.opts.MaxPendingBytes > 0 {
		if c.pendingBytes+p.size() > c.opts.MaxPendingBytes {
			return ErrReconnectBufferFull
		}
	}
	c.pending = append(c.pending, p)
	c.pendingBytes += p.size()
	return nil
}

// writePublish formats and writes PUB/HPUB directly to the transport. If
// verbose mode is enabled, it waits for the paired ack under ackMu,
// serializing with any other ack-expecting command.
func (c *Conn) writePublish(subject, reply string, header *Header, data []byte) (bool, error) {
	if c.opts.Verbose {
		c.ackMu.Lock()
		defer c.ackMu.Unlock()
	}

	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		return false, ErrDisconnected
	}

	var waiter chan ackSignal
	if c.opts.Verbose {
		waiter = make(chan ackSignal, 1)
		c.pendingAck = waiter
	}

	if header != nil {
		hb := header.Bytes()
		total := len(hb) + len(data)
		var line string
		if reply == "" {
			line = fmt.Sprintf("HPUB %s %d %d\r\n", subject, len(hb), total)
		} else {
			line = fmt.Sprintf("HPUB %s %s %d %d\r\n", subject, reply, len(hb), total)
		}
		c.writeLocked(line)
		c.writeBytesLocked(hb)
		c.writeBytesLocked(data)
	} else {
		var line string
		if reply == "" {
			line = fmt.Sprintf("PUB %s %d\r\n", subject, len(data))
		} else {
			line = fmt.Sprintf("PUB %s %s %d\r\n", subject, reply, len(data))
		}
		c.writeLocked(line)
		c.writeBytesLocked(data)
	}
	c.writeLocked(crlf)
	err := c.flushLocked()

	if err == nil {
		c.stats.outMsgs++
		c.stats.outBytes += uint64(len(data))
		if c.metrics != nil {
			c.metrics.OutMsgs.Inc()
			c.metrics.OutBytes.Add(float64(len(data)))
		}
	}
	c.mu.Unlock()

	if err != nil {
		return false, err
	}
	if waiter == nil {
		return true, nil
	}

	select {
	case res := <-waiter:
		if res.err != nil {
			return false, res.err
		}
		return res.ok, nil
	case <-c.closedCh:
		return false, ErrConnectionClosed
	}
}

// flushPendingLocked re-issues every buffered publish in FIFO order. It
// must run after reinstallAllLocked so that a subscription created before
// connect observes messages published before connect. Must be called with Conn.mu held, transport up.
func (c *Conn) flushPendingLocked() error {
	pending := c.pending
	c.pending = nil
	c.pendingBytes = 0

	var outMsgs, outBytes uint64
	for _, p := range pending {
		if p.header != nil {
			hb := p.header.Bytes()
			total := len(hb) + len(p.data)
			if p.reply == "" {
				c.writeLocked(fmt.Sprintf("HPUB %s %d %d\r\n", p.subject, len(hb), total))
			} else {
				c.writeLocked(fmt.Sprintf("HPUB %s %s %d %d\r\n", p.subject, p.reply, len(hb), total))
			}
			c.writeBytesLocked(hb)
			c.writeBytesLocked(p.data)
		} else {
			if p.reply == "" {
				c.writeLocked(fmt.Sprintf("PUB %s %d\r\n", p.subject, len(p.data)))
			} else {
				c.writeLocked(fmt.Sprintf("PUB %s %s %d\r\n", p.subject, p.reply, len(p.data)))
			}
			c.writeBytesLocked(p.data)
		}
		c.writeLocked(crlf)
		outMsgs++
		outBytes += uint64(len(p.data))
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.stats.outMsgs += outMsgs
	c.stats.outBytes += outBytes
	if c.metrics != nil {
		c.metrics.OutMsgs.Add(float64(outMsgs))
		c.metrics.OutBytes.Add(float64(outBytes))
	}
	return nil
}
