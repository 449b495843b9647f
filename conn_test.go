package nats

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal in-process stand-in for a NATS-style server: it
// sends INFO, accepts CONNECT without an ack (tests never enable verbose
// mode), and routes PUB/HPUB to matching SUBs with wildcard support.
type fakeServer struct {
	ln net.Listener

	mu   sync.Mutex
	subs map[net.Conn]map[uint64]subEntry
}

type subEntry struct {
	subject string
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, subs: make(map[net.Conn]map[uint64]subEntry)}
	go s.acceptLoop(t)

	url := fmt.Sprintf("nats://%s", ln.Addr().String())
	return s, url
}

func (s *fakeServer) acceptLoop(t *testing.T) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.subs[conn] = make(map[uint64]subEntry)
		s.mu.Unlock()
		go s.handleConn(t, conn)
	}
}

func (s *fakeServer) handleConn(t *testing.T, conn net.Conn) {
	defer conn.Close()
	fmt.Fprintf(conn, "INFO %s\r\n", `{"server_id":"fake","version":"0.1.0","proto":1,"max_payload":1048576}`)

	br := bufio.NewReader(conn)

	// First line is always CONNECT; tests never need to inspect it.
	if _, err := readControlLine(br); err != nil {
		return
	}

	for {
		line, err := readControlLine(br)
		if err != nil {
			return
		}

		switch line.op {
		case "SUB":
			fields := strings.Fields(line.args)
			if len(fields) < 2 {
				continue
			}
			sid, _ := strconv.ParseUint(fields[len(fields)-1], 10, 64)
			s.mu.Lock()
			s.subs[conn][sid] = subEntry{subject: fields[0]}
			s.mu.Unlock()

		case "UNSUB":
			fields := strings.Fields(line.args)
			if len(fields) < 1 {
				continue
			}
			sid, _ := strconv.ParseUint(fields[0], 10, 64)
			s.mu.Lock()
			delete(s.subs[conn], sid)
			s.mu.Unlock()

		case "PING":
			fmt.Fprint(conn, "PONG\r\n")

		case "PUB":
			fields := strings.Fields(line.args)
			subject, reply, n := parsePubFields(fields)
			payload, err := readPayload(br, n)
			if err != nil {
				return
			}
			s.deliver(subject, reply, nil, payload)

		case "HPUB":
			fields := strings.Fields(line.args)
			subject, reply, hlen, total := parseHPubFields(fields)
			blob, err := readPayload(br, total)
			if err != nil {
				return
			}
			s.deliver(subject, reply, blob[:hlen], blob[hlen:])
		}
	}
}

func parsePubFields(fields []string) (subject, reply string, n int) {
	switch len(fields) {
	case 2:
		n, _ = strconv.Atoi(fields[1])
		return fields[0], "", n
	case 3:
		n, _ = strconv.Atoi(fields[2])
		return fields[0], fields[1], n
	}
	return "", "", 0
}

func parseHPubFields(fields []string) (subject, reply string, hlen, total int) {
	switch len(fields) {
	case 3:
		hlen, _ = strconv.Atoi(fields[1])
		total, _ = strconv.Atoi(fields[2])
		return fields[0], "", hlen, total
	case 4:
		hlen, _ = strconv.Atoi(fields[2])
		total, _ = strconv.Atoi(fields[3])
		return fields[0], fields[1], hlen, total
	}
	return "", "", 0, 0
}

func (s *fakeServer) deliver(subject, reply string, header, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn, subs := range s.subs {
		for sid, entry := range subs {
			if !matchSubject(entry.subject, subject) {
				continue
			}
			if header != nil {
				total := len(header) + len(payload)
				if reply == "" {
					fmt.Fprintf(conn, "HMSG %s %d %d %d\r\n", subject, sid, len(header), total)
				} else {
					fmt.Fprintf(conn, "HMSG %s %d %s %d %d\r\n", subject, sid, reply, len(header), total)
				}
				conn.Write(header)
				conn.Write(payload)
				conn.Write([]byte("\r\n"))
			} else {
				if reply == "" {
					fmt.Fprintf(conn, "MSG %s %d %d\r\n", subject, sid, len(payload))
				} else {
					fmt.Fprintf(conn, "MSG %s %d %s %d\r\n", subject, sid, reply, len(payload))
				}
				conn.Write(payload)
				conn.Write([]byte("\r\n"))
			}
		}
	}
}

func (s *fakeServer) close() { s.ln.Close() }

// matchSubject implements the dot-token wildcard rules: "*" matches
// exactly one token, ">" matches one-or-more trailing tokens and must be
// the pattern's last token.
func matchSubject(pattern, subject string) bool {
	pTok := strings.Split(pattern, ".")
	sTok := strings.Split(subject, ".")

	for i, p := range pTok {
		if p == ">" {
			return i < len(sTok)
		}
		if i >= len(sTok) {
			return false
		}
		if p != "*" && p != sTok[i] {
			return false
		}
	}
	return len(pTok) == len(sTok)
}

func TestConnectAndClose(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, nc.Status())

	nc.Close()
	assert.Equal(t, StatusClosed, nc.Status())
}

func TestPublishSubscribeEcho(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe("greet.hello")
	require.NoError(t, err)

	require.NoError(t, nc.Publish("greet.hello", []byte("hi there")))

	select {
	case msg := <-sub.Msgs():
		assert.Equal(t, "greet.hello", msg.Subject)
		assert.Equal(t, "hi there", string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestPublishSubscribeBinaryPayloadWithDelimiters(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe("binary.test")
	require.NoError(t, err)

	payload := []byte{0x00, '\r', '\n', '\r', '\n', 0xFF, 'a', 'b', 0x01}
	require.NoError(t, nc.Publish("binary.test", payload))

	select {
	case msg := <-sub.Msgs():
		assert.Equal(t, payload, msg.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for binary message")
	}
}

func TestWildcardSubscribe(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe("subject1.*")
	require.NoError(t, err)

	require.NoError(t, nc.Publish("subject1.1", []byte("one")))
	require.NoError(t, nc.Publish("subject1.2", []byte("two")))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Msgs():
			got = append(got, string(msg.Data))
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for wildcard message")
		}
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestRequestReply(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe("svc.echo")
	require.NoError(t, err)
	go func() {
		msg := <-sub.Msgs()
		_ = msg.Respond([]byte("pong:" + string(msg.Data)))
	}()

	reply, err := nc.Request("svc.echo", []byte("ping"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong:ping", string(reply.Data))
}

func TestStatusChanReplaysCurrentStateThenTransitions(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)

	ch := nc.StatusChan()
	assert.Equal(t, StatusConnected, <-ch)

	nc.Close()
	assert.Equal(t, StatusClosed, <-ch)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv, url := newFakeServer(t)
	defer srv.close()

	nc, err := Connect(url, WithoutReconnect())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe("stop.me")
	require.NoError(t, err)

	assert.True(t, sub.Unsubscribe())
	assert.False(t, sub.Unsubscribe())

	require.NoError(t, nc.Publish("stop.me", []byte("should not arrive")))

	select {
	case _, ok := <-sub.Msgs():
		assert.False(t, ok, "expected channel to be closed, not deliver a message")
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected Msgs() channel to be closed after Unsubscribe")
	}
}
