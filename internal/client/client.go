// Package client owns the live telemetry channel to a transaction spammer.
//
// A Client dials one WebSocket, decodes every inbound frame with the
// protocol codec and hands the result to an Intake in arrival order. It
// also writes start/stop commands and reports connection status changes.
//
// The package also carries thin API clients for a running spamwatch server
// (HTTPClient, GRPCClient), used by the CLI.
package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alfredjeanlab/spamwatch/internal/idgen"
	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// DefaultHandshakeTimeout bounds the WebSocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// DefaultWriteTimeout bounds a single command or control write.
const DefaultWriteTimeout = 5 * time.Second

// subscriberBuffer is how many transitions a slow subscriber may lag before
// further transitions are dropped for it.
const subscriberBuffer = 16

// Option configures a Client.
type Option func(*Client)

// WithHeader adds request headers to the opening handshake.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h.Clone() }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer replaces the default WebSocket dialer, e.g. to set TLS options.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithPingInterval enables keepalive pings. Zero disables them.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithReadTimeout sets the deadline for the next inbound frame or pong.
// Zero waits forever.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

// WithWriteTimeout sets the deadline for each outbound write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// WithRegisterer registers the client's prometheus collectors.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.registerer = reg }
}

// WithClock overrides the clock used to stamp frames that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the connection manager. It is safe for concurrent use.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	intake Intake
	logger *slog.Logger
	now    func() time.Time

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	registerer   prometheus.Registerer
	metrics      *metrics

	// notifyMu serialises state transitions with their notifications so
	// subscribers and the intake observe transitions in order.
	notifyMu sync.Mutex

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	gen      uint64 // bumped per Connect and Close; stale dials are discarded
	session  string
	stopPing chan struct{}
	reported State

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[chan State]struct{}
}

// New creates an Idle client for the given ws:// or wss:// URL. Decoded
// envelopes and status changes are delivered to intake.
func New(url string, intake Intake, opts ...Option) (*Client, error) {
	c := &Client{
		url:    url,
		intake: intake,
		logger: slog.Default(),
		now:    time.Now,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		writeTimeout: DefaultWriteTimeout,
		subs:         make(map[chan State]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	m, err := newMetrics(c.registerer)
	if err != nil {
		return nil, err
	}
	c.metrics = m
	c.logger = c.logger.With("component", "client", "url", url)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the connection status as the store sees it.
func (c *Client) Status() model.ConnStatus {
	return c.State().ConnStatus()
}

// SessionID returns the id of the current or most recent connection, or ""
// before the first successful dial.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe returns a channel that receives every subsequent state
// transition, and a function that cancels the subscription and closes the
// channel. Transitions are dropped for a subscriber whose buffer is full.
func (c *Client) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// Connect dials the spammer. It returns once the channel is open or the dial
// failed; frames are then read on a background goroutine until the channel
// closes. Connect is a no-op while Connecting or Connected.
func (c *Client) Connect(ctx context.Context) error {
	var gen uint64
	proceed := false
	c.transition(func() (State, bool) {
		if c.state == StateConnecting || c.state == StateConnected {
			return c.state, false
		}
		c.gen++
		gen = c.gen
		c.state = StateConnecting
		proceed = true
		return StateConnecting, true
	})
	if !proceed {
		return nil
	}

	c.logger.Debug("dialing")
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.transition(func() (State, bool) {
			if c.gen != gen {
				return c.state, false
			}
			c.state = StateDisconnected
			return StateDisconnected, true
		})
		c.logger.Warn("dial failed", "err", err)
		return &TransportError{Op: "dial", URL: c.url, Err: err}
	}

	session, err := idgen.Session()
	if err != nil {
		session = idgen.SessionPrefix + "unknown"
	}

	installed := false
	var stop chan struct{}
	c.transition(func() (State, bool) {
		if c.gen != gen {
			// Closed while the dial was in flight.
			return c.state, false
		}
		stop = make(chan struct{})
		c.conn = conn
		c.session = session
		c.stopPing = stop
		c.state = StateConnected
		installed = true
		return StateConnected, true
	})
	if !installed {
		_ = conn.Close()
		return nil
	}

	c.logger.Info("connected", "session", session)
	c.armReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		c.armReadDeadline(conn)
		return nil
	})
	go c.readLoop(conn, session)
	if c.pingInterval > 0 {
		go c.pingLoop(conn, stop)
	}
	return nil
}

// SendCommand writes a start or stop command. Any other kind returns an
// error wrapping protocol.ErrNotCommand. When not Connected the command is
// dropped and nil is returned. A failed write tears the channel down; the
// failure is reported through the state transition rather than returned.
func (c *Client) SendCommand(kind protocol.MessageKind) error {
	payload, err := protocol.EncodeCommand(kind)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateConnected || conn == nil {
		c.logger.Debug("command dropped, not connected", "command", kind.String(), "state", state.String())
		return nil
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(c.writeDeadline())
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("command write failed", "command", kind.String(), "err", err)
		c.drop(conn, &TransportError{Op: "write", URL: c.url, Err: err})
		return nil
	}
	c.metrics.command(kind.String())
	c.logger.Debug("command sent", "command", kind.String())
	return nil
}

// Close shuts the channel and moves to Disconnected. Frames still arriving
// on the old channel are discarded. Close is idempotent.
func (c *Client) Close() error {
	var conn *websocket.Conn
	c.transition(func() (State, bool) {
		if c.state == StateDisconnected {
			return c.state, false
		}
		conn = c.detach()
		c.gen++
		c.state = StateDisconnected
		return StateDisconnected, true
	})
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.writeDeadline())
	c.logger.Info("closed")
	return conn.Close()
}

// readLoop forwards decoded frames until the connection fails. Frames that
// fail to decode are logged and skipped.
func (c *Client) readLoop(conn *websocket.Conn, session string) {
	log := c.logger.With("session", session)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.current(conn) {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("remote closed the channel", "err", err)
			} else {
				log.Warn("read failed", "err", err)
			}
			c.drop(conn, &TransportError{Op: "read", URL: c.url, Err: err})
			return
		}
		c.armReadDeadline(conn)

		env, err := protocol.Decode(data)
		if err != nil {
			reason := "other"
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				reason = de.Reason()
			}
			c.metrics.decodeError(reason)
			log.Warn("dropping undecodable frame", "reason", reason, "err", err)
			continue
		}
		c.metrics.frame(env.Kind.String())
		if env.Timestamp.IsZero() {
			env.Timestamp = c.now()
		}
		if !c.deliver(conn, env) {
			return
		}
	}
}

// deliver hands env to the intake while conn is still installed. It holds
// notifyMu so a concurrent Close or drop cannot complete between the check
// and the hand-off; no frame reaches the intake after Disconnected.
func (c *Client) deliver(conn *websocket.Conn, env protocol.Envelope) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if !c.current(conn) {
		return false
	}
	c.intake.OnEnvelope(env)
	return true
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline()); err != nil {
				c.logger.Warn("ping failed", "err", err)
				c.drop(conn, &TransportError{Op: "write", URL: c.url, Err: err})
				return
			}
		}
	}
}

func (c *Client) armReadDeadline(conn *websocket.Conn) {
	if c.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// writeDeadline returns the zero time, meaning no deadline, when writes are
// unbounded.
func (c *Client) writeDeadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeTimeout)
}

// current reports whether conn is still the installed connection.
func (c *Client) current(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// drop tears down conn if it is still the installed connection.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	dropped := false
	c.transition(func() (State, bool) {
		if c.conn != conn {
			return c.state, false
		}
		c.detach()
		c.state = StateDisconnected
		dropped = true
		return StateDisconnected, true
	})
	if dropped {
		c.logger.Debug("channel torn down", "cause", cause)
		_ = conn.Close()
	}
}

// detach clears the installed connection and stops its pinger. c.mu must
// be held.
func (c *Client) detach() *websocket.Conn {
	conn := c.conn
	c.conn = nil
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	return conn
}

// transition runs fn under the state lock and, when fn reports a change,
// notifies subscribers and the intake before any other transition can run.
func (c *Client) transition(fn func() (State, bool)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	to, changed := fn()
	prev := c.reported
	if changed {
		c.reported = to
	}
	c.mu.Unlock()
	if !changed {
		return
	}

	c.metrics.setConnected(to == StateConnected)
	c.subMu.Lock()
	for ch := range c.subs {
		select {
		case ch <- to:
		default:
		}
	}
	c.subMu.Unlock()

	if prev.ConnStatus() != to.ConnStatus() {
		c.intake.OnStatus(to.ConnStatus())
	}
}
