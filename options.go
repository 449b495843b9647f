package nats

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"github.com/sty-holdings/dart-to-nats/internal/natsmetrics"
)

// LangString/Version identify this client in the CONNECT handshake and in
// the User-Agent-like "lang"/"version" fields other NATS tooling reports.
const (
	LangString     = "go"
	ClientVersion  = "0.1.0"
	ClientProtocol = 1
)

// connectInfo is the JSON document sent after the CONNECT keyword. Unknown
// (zero-value optional) fields are omitted rather than emitted as null or
// empty string.
type connectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required,omitempty"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	AuthToken    string `json:"auth_token,omitempty"`
	JWT          string `json:"jwt,omitempty"`
	NKey         string `json:"nkey,omitempty"`
	Sig          string `json:"sig,omitempty"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo,omitempty"`
	Headers      bool   `json:"headers,omitempty"`
	NoResponders bool   `json:"no_responders,omitempty"`
}

// Options holds every client-configurable setting. Use the With* Option
// functions to build one; the zero value (plus Connect's own defaults) is
// a usable, unauthenticated client.
type Options struct {
	URLs []string

	Verbose      bool
	Pedantic     bool
	Echo         bool
	Headers      bool
	NoResponders bool

	User      string
	Password  string
	AuthToken string
	JWT       string
	Seed      string // nkey seed text, signs the server nonce

	Name string

	TLSConfig   *tls.Config
	TLSRequired bool

	AllowReconnect bool
	MaxReconnect   int // -1 = unbounded
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration

	InboxPrefix string

	// MaxPendingBytes bounds the pre-connect/reconnect publish buffer.
	// Zero means unbounded.
	MaxPendingBytes int64

	ConnectedCB    ConnHandler
	DisconnectedCB ConnErrHandler
	ReconnectedCB  ConnHandler
	ClosedCB       ConnHandler
	ErrorCB        ErrHandler

	Logger  *zap.Logger
	Metrics *natsmetrics.Registry
}

// ConnHandler is invoked for connect/reconnect/close lifecycle events.
type ConnHandler func(*Conn)

// ConnErrHandler is invoked when the transport is lost, carrying the
// triggering error. A user-initiated Close does not invoke it; ClosedCB
// fires instead.
type ConnErrHandler func(*Conn, error)

// ErrHandler is invoked for asynchronous errors not tied to a specific
// blocking call (e.g. a slow-consumer drop on a subscription).
type ErrHandler func(*Conn, *Subscription, error)

const (
	defaultReconnectWait  = 2 * time.Second
	defaultConnectTimeout = 2 * time.Second
	defaultMaxReconnect   = 60
	defaultInboxPrefix    = "_INBOX"
)

func defaultOptions(urls []string) Options {
	return Options{
		URLs:           urls,
		Echo:           true,
		Headers:        true,
		NoResponders:   true,
		AllowReconnect: true,
		MaxReconnect:   defaultMaxReconnect,
		ReconnectWait:  defaultReconnectWait,
		ConnectTimeout: defaultConnectTimeout,
		InboxPrefix:    defaultInboxPrefix,
	}
}

// Option configures a Conn at construction time.
type Option func(*Options)

func WithName(name string) Option { return func(o *Options) { o.Name = name } }

func WithUserPass(user, pass string) Option {
	return func(o *Options) { o.User = user; o.Password = pass }
}

func WithToken(token string) Option { return func(o *Options) { o.AuthToken = token } }

func WithJWT(jwt string) Option { return func(o *Options) { o.JWT = jwt } }

// WithNKeySeed configures handshake authentication by signing the
// server's nonce with the Ed25519 key pair derived from seed.
func WithNKeySeed(seed string) Option { return func(o *Options) { o.Seed = seed } }

// WithTLSConfig supplies the trust material used for any TLS upgrade,
// whether triggered by a "tls://" URL or by the server's INFO advertising
// tls_required. It does not by itself demand TLS; pair with
// WithTLSRequired to also treat a non-TLS server as a handshake error.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = cfg }
}

// WithTLSRequired declares that the client insists on a TLS-capable
// server; if the server's INFO does not advertise tls_required, connect
// fails fatally with ErrSecureConnWanted.
func WithTLSRequired() Option {
	return func(o *Options) { o.TLSRequired = true }
}

func WithVerbose() Option { return func(o *Options) { o.Verbose = true } }

func WithPedantic() Option { return func(o *Options) { o.Pedantic = true } }

func WithNoEcho() Option { return func(o *Options) { o.Echo = false } }

// WithHeaders controls whether the CONNECT handshake advertises header
// support. Disabling it also makes no_responders meaningless, since a
// no-responder reply is delivered as a headers-only message.
func WithHeaders(enabled bool) Option { return func(o *Options) { o.Headers = enabled } }

// WithNoResponders controls whether the server is asked to reply with a
// "no responders" headers-only message when a request subject has no
// subscribers, instead of letting the caller time out silently.
func WithNoResponders(enabled bool) Option {
	return func(o *Options) { o.NoResponders = enabled }
}

func WithoutReconnect() Option { return func(o *Options) { o.AllowReconnect = false } }

// WithMaxReconnect sets the retry bound; -1 means unbounded.
func WithMaxReconnect(n int) Option { return func(o *Options) { o.MaxReconnect = n } }

func WithReconnectWait(d time.Duration) Option {
	return func(o *Options) { o.ReconnectWait = d }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithInboxPrefix overrides the default "_INBOX" request/reply root. Must
// be set before the first Request call.
func WithInboxPrefix(prefix string) Option {
	return func(o *Options) { o.InboxPrefix = prefix }
}

// WithMaxPendingBytes bounds the pre-connect/reconnect publish buffer.
func WithMaxPendingBytes(n int64) Option {
	return func(o *Options) { o.MaxPendingBytes = n }
}

func WithConnectHandler(cb ConnHandler) Option {
	return func(o *Options) { o.ConnectedCB = cb }
}

func WithDisconnectHandler(cb ConnErrHandler) Option {
	return func(o *Options) { o.DisconnectedCB = cb }
}

func WithReconnectHandler(cb ConnHandler) Option {
	return func(o *Options) { o.ReconnectedCB = cb }
}

func WithClosedHandler(cb ConnHandler) Option {
	return func(o *Options) { o.ClosedCB = cb }
}

func WithErrorHandler(cb ErrHandler) Option {
	return func(o *Options) { o.ErrorCB = cb }
}

// WithLogger attaches a structured logger for connection lifecycle
// events. A nil logger (the default) disables logging entirely.
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithMetrics attaches a Prometheus registry that mirrors Stats().
func WithMetrics(r *natsmetrics.Registry) Option {
	return func(o *Options) { o.Metrics = r }
}
