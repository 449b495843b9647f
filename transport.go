package nats

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// byteStream is the transport contract the codec and state machine
// consume. net.Conn and *tls.Conn already satisfy it; wsStream adapts a
// gorilla/websocket connection (message-framed) to the same interface.
type byteStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
}

// wsStream adapts a framed WebSocket connection into a byte stream: reads
// drain the current frame before pulling the next one; each Write call
// emits one binary frame. The codec only cares about the concatenated
// byte sequence, so frame boundaries are otherwise invisible to it.
type wsStream struct {
	conn *websocket.Conn
	rbuf []byte
}

func (w *wsStream) Read(p []byte) (int, error) {
	for len(w.rbuf) == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.rbuf = data
	}
	n := copy(p, w.rbuf)
	w.rbuf = w.rbuf[n:]
	return n, nil
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error { return w.conn.Close() }

func (w *wsStream) SetDeadline(t time.Time) error {
	if err := w.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return w.conn.SetWriteDeadline(t)
}

func defaultPort(scheme string) string {
	switch scheme {
	case "nats":
		return "4222"
	case "tls":
		return "4443"
	default:
		return ""
	}
}

func hostWithDefaultPort(u *url.URL) string {
	host := u.Host
	if u.Port() == "" {
		if p := defaultPort(u.Scheme); p != "" {
			host = net.JoinHostPort(u.Hostname(), p)
		}
	}
	return host
}

// dialTransport opens a byte stream to u, performing an immediate TLS
// upgrade for the "tls" scheme. WebSocket schemes use gorilla's own TLS handling
// for wss.
func dialTransport(u *url.URL, tlsConfig *tls.Config, timeout time.Duration) (byteStream, error) {
	switch u.Scheme {
	case "nats":
		conn, err := net.DialTimeout("tcp", hostWithDefaultPort(u), timeout)
		if err != nil {
			return nil, err
		}
		return conn, nil

	case "tls":
		conn, err := net.DialTimeout("tcp", hostWithDefaultPort(u), timeout)
		if err != nil {
			return nil, err
		}
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{ServerName: u.Hostname()}
		}
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(deadlineContext(timeout)); err != nil {
			conn.Close()
			return nil, err
		}
		return tc, nil

	case "ws", "wss":
		dialer := websocket.Dialer{
			HandshakeTimeout: timeout,
			TLSClientConfig:  tlsConfig,
		}
		wc, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			return nil, err
		}
		return &wsStream{conn: wc}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrBadURLScheme, u.Scheme)
	}
}

// upgradeToTLS wraps an already-open plain byte stream in TLS, used when
// the server's INFO advertises tls_required on a "nats://" connection
//.
func upgradeToTLS(conn net.Conn, hostname string, cfg *tls.Config, timeout time.Duration) (byteStream, error) {
	tlsCfg := cfg
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: hostname}
	} else if tlsCfg.ServerName == "" {
		c := tlsCfg.Clone()
		c.ServerName = hostname
		tlsCfg = c
	}
	tc := tls.Client(conn, tlsCfg)
	if err := tc.HandshakeContext(deadlineContext(timeout)); err != nil {
		return nil, err
	}
	return tc, nil
}
