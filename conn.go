// Package nats implements a client for a NATS-style publish/subscribe
// messaging system: connection handshake and reconnect, the MSG/HMSG wire
// codec, subscriptions, publish (with a pre-connect buffer), request/
// reply, and nkey-based handshake authentication.
package nats

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sty-holdings/dart-to-nats/internal/natslog"
	"github.com/sty-holdings/dart-to-nats/internal/natsmetrics"
	"github.com/sty-holdings/dart-to-nats/nkeys"
	"github.com/sty-holdings/dart-to-nats/nuid"
)

// Conn is a session to a single NATS-style server. The zero value is not
// usable; construct one with Connect.
type Conn struct {
	opts Options
	url  *url.URL

	mu       sync.Mutex
	status   Status
	statusBC *statusBroadcaster

	stream  byteStream
	rawConn net.Conn // non-nil only while on a plain ("nats") scheme, for in-place TLS upgrade
	br      *bufio.Reader
	bw      *bufio.Writer

	info serverInfo
	reg  *registry

	pending      []pendingPub
	pendingBytes int64

	stats   statCounters
	metrics *natsmetrics.Registry
	logger  *zap.Logger

	ackMu      sync.Mutex
	pendingAck chan ackSignal

	pongMu sync.Mutex
	pongs  []chan bool

	req   *requester
	idgen *nuid.NUID

	decoders map[string]decoderFunc

	used       bool
	allowRetry bool
	closedCh   chan struct{}
	closeOnce  sync.Once
}

// Connect dials rawURL (scheme one of nats, tls, ws, wss) and performs the
// handshake, blocking until the connection is established, a fatal
// handshake error occurs, or the connect timeout/retry budget is
// exhausted.
func Connect(rawURL string, opts ...Option) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("nats: bad URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadURLScheme, u.Scheme)
	}

	o := defaultOptions([]string{rawURL})
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = natslog.Nop()
	}

	c := &Conn{
		opts:       o,
		url:        u,
		statusBC:   newStatusBroadcaster(StatusDisconnected),
		reg:        newRegistry(),
		req:        newRequester(),
		idgen:      nuid.New(),
		logger:     o.Logger,
		metrics:    o.Metrics,
		closedCh:   make(chan struct{}),
		allowRetry: o.AllowReconnect,
	}
	c.decodersInit()

	if err := c.initialConnect(); err != nil {
		return nil, err
	}
	return c, nil
}

// ackSignal is what the single pendingAck slot delivers: either the
// server's +OK/-ERR outcome for the command that triggered it, or err set
// to ErrStaleConnection when the transport was lost before a reply
// arrived.
type ackSignal struct {
	ok  bool
	err error
}

// fatalHandshakeError marks a handshake failure as unrecoverable: retry
// must be disabled and the connection moved to Closed.
type fatalHandshakeError struct{ err error }

func (e *fatalHandshakeError) Error() string { return e.err.Error() }
func (e *fatalHandshakeError) Unwrap() error { return e.err }

func (c *Conn) setStatus(s Status) {
	c.status = s
	c.statusBC.set(s)
	if c.logger != nil {
		c.logger.Debug("nats: status change", zap.Stringer("status", s))
	}
	if c.metrics != nil {
		c.metrics.Status.Set(float64(s))
	}
}

// initialConnect performs the first connection attempt, retrying per
// opts.MaxReconnect/ReconnectWait, then starts the
// background read loop.
func (c *Conn) initialConnect() error {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.used = true
	c.setStatus(StatusConnecting)
	c.mu.Unlock()

	attempt, err := c.connectWithRetry()
	if err != nil {
		c.mu.Lock()
		c.setStatus(StatusClosed)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.installAttempt(attempt)
	c.setStatus(StatusConnected)
	if err := c.reinstallAllLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.flushPendingLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	go c.readLoop()

	if c.opts.ConnectedCB != nil {
		c.opts.ConnectedCB(c)
	}
	return nil
}

// connectWithRetry tries handshake() once and then retries it up to
// MaxReconnect more times (-1 = unbounded), sleeping ReconnectWait between
// attempts. A
// fatalHandshakeError aborts immediately without further retries.
func (c *Conn) connectWithRetry() (*connAttempt, error) {
	tries := 0
	for {
		a, err := c.handshake()
		if err == nil {
			return a, nil
		}

		var fatal *fatalHandshakeError
		if errors.As(err, &fatal) {
			return nil, fatal.err
		}

		c.logger.Warn("nats: connect attempt failed", zap.Error(err), zap.Int("attempt", tries+1))

		tries++
		if c.opts.MaxReconnect >= 0 && tries >= c.opts.MaxReconnect+1 {
			return nil, fmt.Errorf("%w: %v", ErrNoServers, err)
		}
		select {
		case <-time.After(c.opts.ReconnectWait):
		case <-c.closedCh:
			return nil, ErrConnectionClosed
		}
	}
}

// connAttempt is the result of one successful handshake, ready to be
// installed as the connection's live transport.
type connAttempt struct {
	stream  byteStream
	rawConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	info    serverInfo
}

// handshake dials the transport, reads INFO, performs an optional TLS
// upgrade, sends CONNECT, and (in verbose mode) waits for its ack.
func (c *Conn) handshake() (*connAttempt, error) {
	c.mu.Lock()
	c.setStatus(StatusInfoHandshake)
	c.mu.Unlock()

	stream, err := dialTransport(c.url, c.opts.TLSConfig, c.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	var rawConn net.Conn
	if c.url.Scheme == "nats" {
		rawConn, _ = stream.(net.Conn)
	}

	if c.opts.ConnectTimeout > 0 {
		_ = stream.SetDeadline(time.Now().Add(c.opts.ConnectTimeout))
	}
	br := bufio.NewReaderSize(stream, 32768)

	line, err := readControlLine(br)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("nats: reading INFO: %w", err)
	}
	if line.op != opInfo {
		stream.Close()
		return nil, fmt.Errorf("nats: protocol exception, INFO not received (got %q)", line.op)
	}

	var info serverInfo
	if err := json.Unmarshal([]byte(line.args), &info); err != nil {
		stream.Close()
		return nil, fmt.Errorf("nats: malformed INFO: %w", err)
	}

	if c.opts.TLSRequired && !info.TLSRequired {
		stream.Close()
		return nil, &fatalHandshakeError{ErrSecureConnWanted}
	}

	if c.url.Scheme == "ws" && info.TLSRequired {
		// A plain "ws://" transport has no underlying net.Conn to upgrade
		// in place the way "nats://" does: the connection is already
		// framed as WebSocket messages, so there is no opportunity to
		// splice in a TLS handshake. The server's requirement can only be
		// satisfied by reconnecting over "wss://".
		stream.Close()
		return nil, &fatalHandshakeError{ErrSecureConnRequired}
	}

	if c.url.Scheme == "nats" {
		if info.TLSRequired {
			c.mu.Lock()
			c.setStatus(StatusTLSHandshake)
			c.mu.Unlock()

			tlsStream, err := upgradeToTLS(rawConn, c.url.Hostname(), c.opts.TLSConfig, c.opts.ConnectTimeout)
			if err != nil {
				stream.Close()
				return nil, &fatalHandshakeError{fmt.Errorf("nats: TLS upgrade: %w", err)}
			}
			stream = tlsStream
			rawConn = nil
			br = bufio.NewReaderSize(stream, 32768)
		}
	}

	_ = stream.SetDeadline(time.Time{})
	bw := bufio.NewWriterSize(stream, 32768)

	if err := c.sendConnect(&info, br, bw); err != nil {
		stream.Close()
		return nil, err
	}

	return &connAttempt{stream: stream, rawConn: rawConn, br: br, bw: bw, info: info}, nil
}

// sendConnect writes the CONNECT command and, in verbose mode, blocks for
// the server's +OK/-ERR ack.
func (c *Conn) sendConnect(info *serverInfo, br *bufio.Reader, bw *bufio.Writer) error {
	ci := connectInfo{
		Verbose:      c.opts.Verbose,
		Pedantic:     c.opts.Pedantic,
		TLSRequired:  c.opts.TLSRequired,
		User:         c.opts.User,
		Pass:         c.opts.Password,
		AuthToken:    c.opts.AuthToken,
		JWT:          c.opts.JWT,
		Name:         c.opts.Name,
		Lang:         LangString,
		Version:      ClientVersion,
		Protocol:     ClientProtocol,
		Echo:         c.opts.Echo,
		Headers:      c.opts.Headers,
		NoResponders: c.opts.NoResponders,
	}

	if c.opts.Seed != "" && info.Nonce != "" {
		kp, err := nkeys.FromSeed(c.opts.Seed)
		if err != nil {
			return fmt.Errorf("nats: bad nkey seed: %w", err)
		}
		pub, err := kp.PublicKey()
		if err != nil {
			return fmt.Errorf("nats: deriving public nkey: %w", err)
		}
		ci.NKey = pub
		ci.Sig = kp.SignBase64([]byte(info.Nonce))
	}

	b, err := json.Marshal(ci)
	if err != nil {
		return fmt.Errorf("nats: marshaling CONNECT options: %w", err)
	}

	if _, err := fmt.Fprintf(bw, "CONNECT %s\r\n", b); err != nil {
		return err
	}

	if !c.opts.Verbose {
		return bw.Flush()
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	line, err := readControlLine(br)
	if err != nil {
		return fmt.Errorf("nats: awaiting CONNECT ack: %w", err)
	}
	switch line.op {
	case opOK:
		return nil
	case opErr:
		return fmt.Errorf("%w: %s", ErrAuthorization, line.args)
	default:
		return fmt.Errorf("nats: unexpected reply to CONNECT: %s", line.op)
	}
}

// installAttempt adopts a's transport as the connection's live one. Must
// be called with Conn.mu held.
func (c *Conn) installAttempt(a *connAttempt) {
	c.stream = a.stream
	c.rawConn = a.rawConn
	c.br = a.br
	c.bw = a.bw
	c.info = a.info
}

// reinstallAllLocked re-issues SUB for every registered subscription
// using its original queue group. Must run before flushing
// the pending-publish buffer. Must be called with Conn.mu held.
//
// It does not take ackMu before writing, unlike subscribe/unsubscribe/
// writePublish: both call sites hold Conn.mu continuously from the
// moment status becomes StatusConnected through this call, and the read
// loop that would dispatch a verbose +OK/-ERR has not been started yet
// (go c.readLoop() runs after Conn.mu is released). No other goroutine
// can observe StatusConnected and race a SUB/UNSUB/PUB in to steal the
// ack slot until reinstall has returned, so there is nothing for these
// SUBs to desync against.
func (c *Conn) reinstallAllLocked() error {
	for _, s := range c.reg.subs {
		c.writeLocked(subProtoLine(s.subject, s.queue, s.sid))
		s.installed = true
	}
	return c.flushLocked()
}

// writeLocked queues a text line onto the buffered writer. Must be
// called with Conn.mu held and a live connection.
func (c *Conn) writeLocked(s string) {
	if c.bw != nil {
		c.bw.WriteString(s)
	}
}

func (c *Conn) writeBytesLocked(b []byte) {
	if c.bw != nil {
		c.bw.Write(b)
	}
}

func (c *Conn) flushLocked() error {
	if c.bw == nil {
		return ErrDisconnected
	}
	return c.bw.Flush()
}

// readLoop is the connection's single reader goroutine: it decodes
// control lines and dispatches them until the transport errs.
func (c *Conn) readLoop() {
	for {
		c.mu.Lock()
		br := c.br
		c.mu.Unlock()
		if br == nil {
			return
		}

		line, err := readControlLine(br)
		if err != nil {
			c.handleReadError(err)
			return
		}
		if err := c.dispatch(line, br); err != nil {
			c.logger.Warn("nats: protocol decode error", zap.Error(err))
			if c.opts.ErrorCB != nil {
				c.opts.ErrorCB(c, nil, err)
			}
			c.handleReadError(err)
			return
		}
	}
}

func (c *Conn) dispatch(line controlLine, br *bufio.Reader) error {
	switch line.op {
	case opMsg:
		return c.handleMsg(line.args, br)
	case opHMsg:
		return c.handleHMsg(line.args, br)
	case opPing:
		c.handlePing()
	case opPong:
		c.handlePong()
	case opInfo:
		c.handleInfo(line.args)
	case opOK:
		c.handleAck(true)
	case opErr:
		c.logger.Warn("nats: server error", zap.String("reason", line.args))
		c.handleAck(false)
	default:
		// Unknown opcode: silently dropped.
	}
	return nil
}

func (c *Conn) handleMsg(args string, br *bufio.Reader) error {
	m, err := parseMsgArgs(args)
	if err != nil {
		return err
	}
	payload, err := readPayload(br, m.n1)
	if err != nil {
		return err
	}
	c.deliver(m.subject, m.sid, m.reply, nil, payload)
	return nil
}

func (c *Conn) handleHMsg(args string, br *bufio.Reader) error {
	m, err := parseHMsgArgs(args)
	if err != nil {
		return err
	}
	total := m.n2 // total = header + payload
	hlen := m.n1
	if hlen > total {
		return fmt.Errorf("nats: malformed HMSG: header_len > total_len")
	}
	blob, err := readPayload(br, total)
	if err != nil {
		return err
	}
	header := DecodeHeader(blob[:hlen])
	payload := blob[hlen:]
	c.deliver(m.subject, m.sid, m.reply, header, payload)
	return nil
}

func (c *Conn) deliver(subject string, sid uint64, reply string, header *Header, payload []byte) {
	c.mu.Lock()
	sub := c.reg.get(sid)
	if sub != nil {
		c.stats.inMsgs++
		c.stats.inBytes += uint64(len(payload))
	}
	metrics := c.metrics
	c.mu.Unlock()

	if metrics != nil && sub != nil {
		metrics.InMsgs.Inc()
		metrics.InBytes.Add(float64(len(payload)))
	}

	if sub == nil {
		// Unknown/unsubscribed sid: discarded silently.
		return
	}

	msg := &Msg{Subject: subject, Sid: sid, Reply: reply, Data: payload, Header: header, conn: c}
	select {
	case sub.msgs <- msg:
	default:
		c.logger.Warn("nats: slow consumer, dropping message", zap.Uint64("sid", sid), zap.String("subject", subject))
		if c.opts.ErrorCB != nil {
			c.opts.ErrorCB(c, sub, fmt.Errorf("nats: slow consumer, message dropped on %q", subject))
		}
	}
}

func (c *Conn) handlePing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusConnected {
		c.writeLocked("PONG\r\n")
		_ = c.flushLocked()
	}
}

func (c *Conn) handlePong() {
	c.pongMu.Lock()
	if len(c.pongs) == 0 {
		c.pongMu.Unlock()
		return
	}
	ch := c.pongs[0]
	c.pongs = c.pongs[1:]
	c.pongMu.Unlock()
	if ch != nil {
		ch <- true
	}
}

func (c *Conn) handleInfo(args string) {
	var info serverInfo
	if err := json.Unmarshal([]byte(args), &info); err != nil {
		return
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

// handleAck completes the single outstanding ack-expecting command, in
// FIFO order by construction: only one such command is ever in flight at
// a time.
func (c *Conn) handleAck(ok bool) {
	c.mu.Lock()
	waiter := c.pendingAck
	c.pendingAck = nil
	c.mu.Unlock()
	if waiter != nil {
		waiter <- ackSignal{ok: ok}
	}
}

// handleReadError reacts to a transport error observed by readLoop: it
// marks every subscription uninstalled, tears down the transport, and
// either starts a reconnect attempt or closes the connection outright.
func (c *Conn) handleReadError(err error) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.reg.markAllUninstalled()
	stream := c.stream
	c.stream = nil
	c.br = nil
	c.bw = nil
	allowRetry := c.allowRetry
	c.setStatus(StatusDisconnected)
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	c.failPendingWaiters()

	if c.opts.DisconnectedCB != nil {
		c.opts.DisconnectedCB(c, err)
	}

	if allowRetry {
		go c.reconnectLoop()
	} else {
		c.Close()
	}
}

// failPendingWaiters releases a blocked verbose-mode ack waiter with
// ErrStaleConnection and closes every pending ping channel (Ping then
// returns ErrConnectionClosed). In-flight requests are not released here:
// a Request keeps waiting across a disconnect and ends only on a reply,
// its timeout, or Close.
func (c *Conn) failPendingWaiters() {
	c.mu.Lock()
	ackWaiter := c.pendingAck
	c.pendingAck = nil
	c.mu.Unlock()
	if ackWaiter != nil {
		ackWaiter <- ackSignal{err: ErrStaleConnection}
	}

	c.pongMu.Lock()
	pongs := c.pongs
	c.pongs = nil
	c.pongMu.Unlock()
	for _, ch := range pongs {
		if ch != nil {
			close(ch)
		}
	}
}

// reconnectLoop retries the handshake in the background until it
// succeeds or the connection is closed.
func (c *Conn) reconnectLoop() {
	c.mu.Lock()
	c.setStatus(StatusReconnecting)
	c.mu.Unlock()

	attempt, err := c.connectWithRetry()
	if err != nil {
		c.mu.Lock()
		closed := c.status == StatusClosed
		c.mu.Unlock()
		if !closed {
			c.Close()
		}
		return
	}

	c.mu.Lock()
	c.installAttempt(attempt)
	c.stats.reconnects++
	if c.metrics != nil {
		c.metrics.Reconnects.Inc()
	}
	c.setStatus(StatusConnected)
	if err := c.reinstallAllLocked(); err != nil {
		c.mu.Unlock()
		c.Close()
		return
	}
	if err := c.flushPendingLocked(); err != nil {
		c.mu.Unlock()
		c.Close()
		return
	}
	c.mu.Unlock()

	go c.readLoop()

	if c.opts.ReconnectedCB != nil {
		c.opts.ReconnectedCB(c)
	}
}

// Subscribe expresses interest in subject. If the connection is up, SUB
// is sent immediately; otherwise installation is deferred until the next
// successful handshake.
func (c *Conn) Subscribe(subject string) (*Subscription, error) {
	return c.subscribe(subject, "")
}

// QueueSubscribe is Subscribe with a queue group: the server delivers
// each matching message to exactly one member of the group.
func (c *Conn) QueueSubscribe(subject, queue string) (*Subscription, error) {
	return c.subscribe(subject, queue)
}

const defaultSubBuffer = 512

// subscribe allocates a Subscription and, if connected, installs it on the
// server. In verbose mode the SUB line's +OK/-ERR ack is awaited under
// ackMu, the same single-slot pairing writePublish uses, so a SUB sent
// concurrently with an in-flight verbose publish cannot have its ack
// stolen by (or steal the ack from) the other command.
func (c *Conn) subscribe(subject, queue string) (*Subscription, error) {
	if c.opts.Verbose {
		c.ackMu.Lock()
		defer c.ackMu.Unlock()
	}

	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	sub := c.reg.allocate(subject, queue, defaultSubBuffer)
	sub.conn = c

	if c.status != StatusConnected {
		c.mu.Unlock()
		return sub, nil
	}

	var waiter chan ackSignal
	if c.opts.Verbose {
		waiter = make(chan ackSignal, 1)
		c.pendingAck = waiter
	}
	c.writeLocked(subProtoLine(subject, queue, sub.sid))
	err := c.flushLocked()
	if err == nil {
		sub.installed = true
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if waiter == nil {
		return sub, nil
	}

	select {
	case res := <-waiter:
		if res.err != nil {
			return nil, res.err
		}
		if !res.ok {
			return nil, ErrBadSubscription
		}
		return sub, nil
	case <-c.closedCh:
		return nil, ErrConnectionClosed
	}
}

// unsubscribe removes sid from the registry and tells the server, if
// connected. Returns false if sid was already gone. In verbose mode the
// UNSUB line's ack is awaited under ackMu for the same reason subscribe
// waits on it.
func (c *Conn) unsubscribe(sid uint64) bool {
	if c.opts.Verbose {
		c.ackMu.Lock()
		defer c.ackMu.Unlock()
	}

	c.mu.Lock()
	sub := c.reg.remove(sid)
	if sub == nil {
		c.mu.Unlock()
		return false
	}
	close(sub.msgs)

	if c.status != StatusConnected {
		c.mu.Unlock()
		return true
	}

	var waiter chan ackSignal
	if c.opts.Verbose {
		waiter = make(chan ackSignal, 1)
		c.pendingAck = waiter
	}
	c.writeLocked(unsubProtoLine(sid, 0))
	_ = c.flushLocked()
	c.mu.Unlock()

	if waiter != nil {
		select {
		case <-waiter:
		case <-c.closedCh:
		}
	}
	return true
}

// Ping sends a PING and blocks until the matching PONG arrives or timeout
// elapses.
func (c *Conn) Ping(timeout time.Duration) error {
	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		return ErrDisconnected
	}
	ch := make(chan bool, 1)
	c.pongMu.Lock()
	c.pongs = append(c.pongs, ch)
	c.pongMu.Unlock()

	c.writeLocked("PING\r\n")
	err := c.flushLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ok, open := <-ch:
		if !open || !ok {
			return ErrConnectionClosed
		}
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-c.closedCh:
		return ErrConnectionClosed
	}
}

// Close moves the connection to the terminal Closed state: the transport
// is shut down and every waiter released, but the subscription registry
// is left intact in memory.
func (c *Conn) Close() {
	c.closeInternal(false)
}

// ForceClose additionally disables any in-flight retry loop before
// closing.
func (c *Conn) ForceClose() {
	c.closeInternal(true)
}

func (c *Conn) closeInternal(force bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if force {
			c.allowRetry = false
		}
		stream := c.stream
		c.stream = nil
		c.br = nil
		c.bw = nil
		for _, s := range c.reg.subs {
			close(s.msgs)
		}
		c.setStatus(StatusClosed)
		c.mu.Unlock()

		close(c.closedCh)
		if stream != nil {
			stream.Close()
		}
		c.failPendingWaiters()

		if c.opts.ClosedCB != nil {
			c.opts.ClosedCB(c)
		}
	})
}
