package nats

// Stats is a snapshot of a connection's running message/byte/reconnect
// counters.
type Stats struct {
	InMsgs     uint64
	OutMsgs    uint64
	InBytes    uint64
	OutBytes   uint64
	Reconnects uint64
}

type statCounters struct {
	inMsgs     uint64
	outMsgs    uint64
	inBytes    uint64
	outBytes   uint64
	reconnects uint64
}

// Stats returns a point-in-time snapshot of the connection's counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		InMsgs:     c.stats.inMsgs,
		OutMsgs:    c.stats.outMsgs,
		InBytes:    c.stats.inBytes,
		OutBytes:   c.stats.outBytes,
		Reconnects: c.stats.reconnects,
	}
}
