package nats

import "errors"

// Sentinel errors returned by this package. Errors recoverable by the
// reconnect loop are swallowed internally and reflected as status
// transitions; the rest are returned to the caller of the specific
// operation that triggered them.
var (
	// ErrConnectionClosed is returned by any operation attempted after
	// Close has completed, or discovered mid-flight when the connection
	// is torn down.
	ErrConnectionClosed = errors.New("nats: connection closed")

	// ErrDisconnected is returned by Publish (with buffering disabled)
	// and other non-buffering operations when not currently connected.
	ErrDisconnected = errors.New("nats: not connected")

	// ErrTimeout is returned by Request and Ping when their respective
	// deadlines elapse.
	ErrTimeout = errors.New("nats: timeout")

	// ErrBadSubscription is returned by Subscribe/QueueSubscribe when the
	// server answers the SUB with -ERR (verbose mode), and by Msg.Respond
	// when the message has no reply subject.
	ErrBadSubscription = errors.New("nats: invalid subscription")

	// ErrSecureConnRequired is returned when the server's INFO advertises
	// tls_required over a plain "ws://" transport, which has no
	// underlying connection to upgrade in place the way "nats://" does.
	// A "nats://" connection never returns this: it auto-upgrades to TLS
	// instead.
	ErrSecureConnRequired = errors.New("nats: secure connection required by server")

	// ErrSecureConnWanted is returned when the client requires TLS but
	// the server does not support it.
	ErrSecureConnWanted = errors.New("nats: secure connection required by client but not supported by server")

	// ErrAuthorization is returned when the server's ack to CONNECT (in
	// verbose mode) is -ERR.
	ErrAuthorization = errors.New("nats: authorization failed")

	// ErrNoServers is returned when the connect retry budget is exhausted
	// without a successful handshake to the configured server.
	ErrNoServers = errors.New("nats: no servers available for connection")

	// ErrBadURLScheme is returned when a connection URL's scheme is not
	// one of nats, tls, ws, wss.
	ErrBadURLScheme = errors.New("nats: unsupported URL scheme")

	// ErrReconnectBufferFull is returned when the pending-publish buffer
	// has a configured bound and publishing would exceed it.
	ErrReconnectBufferFull = errors.New("nats: pending publish buffer is full")

	// ErrNoDecoder is returned by Msg.Decode when no decoder was
	// registered under the requested tag.
	ErrNoDecoder = errors.New("nats: no decoder registered for tag")

	// ErrAlreadyConnected is returned when the initial connection attempt
	// is made on a Conn that has already been used. Connect always builds
	// a fresh Conn, so it does not return this error.
	ErrAlreadyConnected = errors.New("nats: client already used")

	// ErrInboxPrefixLocked is returned by SetInboxPrefix once the inbox
	// subscription has already been created.
	ErrInboxPrefixLocked = errors.New("nats: inbox prefix cannot change after first use")

	// ErrStaleConnection is returned to a blocked verbose-mode Publish or
	// Subscribe call when the transport is lost before the server's
	// +OK/-ERR ack arrives. Unsubscribe is released the same way but
	// reports only its bool result.
	ErrStaleConnection = errors.New("nats: stale connection")
)
