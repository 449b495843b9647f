package nats

// Msg is an immutable value produced by the decoder once fully framed. It
// carries a back-reference to the owning connection so Respond can
// publish directly to the reply subject.
type Msg struct {
	Subject string
	Reply   string
	Sid     uint64
	Data    []byte
	Header  *Header

	conn *Conn
}

// Respond publishes data to the message's reply subject, if any. It is a
// convenience wrapper the request/reply pattern relies on heavily.
func (m *Msg) Respond(data []byte) error {
	if m.Reply == "" {
		return ErrBadSubscription
	}
	if m.conn == nil {
		return ErrConnectionClosed
	}
	return m.conn.Publish(m.Reply, data)
}

// Decode looks up the decoder registered under tag on the owning
// connection and unmarshals the message payload into out. Returns
// ErrNoDecoder if nothing was registered.
func (m *Msg) Decode(tag string, out any) error {
	if m.conn == nil {
		return ErrConnectionClosed
	}
	return m.conn.decode(tag, m.Data, out)
}
