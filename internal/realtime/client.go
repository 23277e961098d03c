package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second

	heartbeatWriteTimeout = 10 * time.Second
	eventBuffer           = 64

	msgConnectionError = "live update connection error"
	msgConnectFailed   = "failed to connect to live updates"
)

// State is the lifecycle state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CredentialProvider supplies the bearer token used to authenticate the stream.
// A missing token is a normal state that simply prevents connecting.
type CredentialProvider interface {
	Token() (string, bool)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func() (string, bool)

func (f CredentialFunc) Token() (string, bool) { return f() }

// Options configure a Client. Zero durations and attempt counts use the defaults.
type Options struct {
	ProjectID   int64
	Disabled    bool
	APIBaseURL  string
	WSBaseURL   string
	Credentials CredentialProvider
	Handlers    Handlers

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration

	Dialer Dialer
	Clock  Clock
}

// Status is a point-in-time view of a Client.
type Status struct {
	ProjectID int64  `json:"project_id"`
	State     string `json:"state"`
	Open      bool   `json:"open"`
	Attempts  int    `json:"reconnect_attempts"`
}

// Client keeps a board stream open for one project. It reconnects after
// unexpected closes with a fixed delay and a bounded number of attempts,
// sends heartbeats while open and dispatches events to Handlers.
// No method returns an error: failures are logged and reported through
// Handlers.OnError.
type Client struct {
	id     uuid.UUID
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	conn       Conn
	connCtx    context.Context //nolint:containedctx // scoped to one connection attempt
	cancel     context.CancelFunc
	connecting bool
	attempts   int
	generation uint64
	reconnect  Timer
	heartbeat  Timer

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Client bound to opts.ProjectID. It does not connect; call Connect.
func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}

	id := uuid.New()
	c := &Client{
		id:   id,
		opts: opts,
		logger: log.With().
			Str("component", "realtime").
			Str("client_id", id.String()).
			Int64("project_id", opts.ProjectID).
			Logger(),
		state:  StateDisconnected,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	go c.dispatch()

	return c
}

// ProjectID returns the project the client is bound to.
func (c *Client) ProjectID() int64 {
	return c.opts.ProjectID
}

// Connect starts a connection attempt unless the client is disabled, has no
// project, has no credential, is already connecting or is already open.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateClosed || c.opts.Disabled || c.opts.ProjectID == 0 || c.connecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}

	c.connecting = true
	c.state = StateConnecting
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.connCtx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	var (
		token string
		ok    bool
	)
	if c.opts.Credentials != nil {
		token, ok = c.opts.Credentials.Token()
	}
	if !ok || token == "" {
		c.logger.Warn().Msg("live updates: no auth token available, not connecting")
		c.abandon(gen)
		return
	}

	endpoint, err := EndpointURL(c.opts.WSBaseURL, c.opts.APIBaseURL, c.opts.ProjectID, token)
	if err != nil {
		c.logger.Error().Err(err).Msg("live updates: cannot build endpoint")
		c.abandon(gen)
		c.emitError(msgConnectFailed)
		return
	}

	go c.dial(ctx, gen, endpoint)
}

// abandon resets an attempt that never reached the transport. No retry is
// scheduled because the missing precondition, not the connection, is the blocker.
func (c *Client) abandon(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.connecting = false
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
	c.releaseLocked()
}

func (c *Client) dial(ctx context.Context, gen uint64, endpoint string) {
	conn, err := c.opts.Dialer.Dial(ctx, endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error().Err(err).Msg("live updates: connection failed")
		c.emitError(msgConnectionError)
		c.handleClose(gen)
		return
	}

	c.mu.Lock()
	if gen != c.generation || c.state == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.connecting = false
	c.attempts = 0
	c.scheduleHeartbeatLocked(gen)
	c.mu.Unlock()

	c.logger.Info().Msg("live updates: connected")

	c.readLoop(ctx, gen, conn)
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			c.logger.Info().Err(err).Msg("live updates: disconnected")
			_ = conn.Close()
			c.handleClose(gen)
			return
		}
		c.handleMessage(ctx, raw)
	}
}

func (c *Client) handleMessage(ctx context.Context, raw []byte) {
	ev, err := decodeEvent(raw)
	if err != nil {
		c.logger.Error().Err(err).Msg("live updates: malformed message dropped")
		return
	}
	if !ev.Type.Known() {
		c.logger.Warn().Str("event", string(ev.Type)).Msg("live updates: unknown event dropped")
		return
	}

	select {
	case c.events <- ev:
	case <-c.done:
	case <-ctx.Done():
	}
}

// handleClose runs when the transport of generation gen ends. It schedules a
// reconnect while the retry budget lasts.
func (c *Client) handleClose(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state == StateClosed {
		return
	}

	c.connecting = false
	c.state = StateDisconnected
	c.conn = nil
	c.releaseLocked()

	if c.opts.Disabled || c.attempts >= c.opts.MaxReconnectAttempts {
		c.logger.Warn().Int("attempts", c.attempts).Msg("live updates: giving up reconnecting")
		return
	}

	c.attempts++
	c.logger.Info().
		Int("attempt", c.attempts).
		Int("max_attempts", c.opts.MaxReconnectAttempts).
		Dur("delay", c.opts.ReconnectDelay).
		Msg("live updates: reconnect scheduled")

	c.reconnect = c.opts.Clock.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		stale := gen != c.generation
		if !stale {
			c.reconnect = nil
		}
		c.mu.Unlock()

		if !stale {
			c.Connect()
		}
	})
}

func (c *Client) scheduleHeartbeatLocked(gen uint64) {
	c.heartbeat = c.opts.Clock.AfterFunc(c.opts.HeartbeatInterval, func() {
		c.beat(gen)
	})
}

func (c *Client) beat(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	parent := c.connCtx
	c.scheduleHeartbeatLocked(gen)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, heartbeatWriteTimeout)
	defer cancel()

	if err := conn.Write(ctx, heartbeatPayload); err != nil {
		c.logger.Error().Err(err).Msg("live updates: heartbeat failed")
	}
}

// releaseLocked stops timers and cancels the attempt context. c.mu must be held.
func (c *Client) releaseLocked() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.connCtx = nil
}

// Disconnect closes the active connection and cancels pending reconnect and
// heartbeat timers. It is safe to call any number of times. Callbacks
// already in flight for the old connection become no-ops.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.generation++
	conn := c.conn
	c.conn = nil
	c.connecting = false
	c.releaseLocked()
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Close disconnects and disposes the client. A closed client never connects again.
func (c *Client) Close() {
	c.Disconnect()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
}

// IsOpen reports whether the connection is currently open.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == StateOpen && c.conn != nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Status returns a snapshot suitable for reporting.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		ProjectID: c.opts.ProjectID,
		State:     c.state.String(),
		Open:      c.state == StateOpen && c.conn != nil,
		Attempts:  c.attempts,
	}
}

func (c *Client) emitError(message string) {
	ev := Event{Type: EventError, Data: map[string]any{"message": message}}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.deliver(ev)
		}
	}
}

func (c *Client) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("live updates: handler panicked")
		}
	}()

	h := c.opts.Handlers
	switch ev.Type {
	case EventConnected:
		c.logger.Debug().Interface("data", ev.Data).Msg("live updates: stream confirmed")
		if h.OnConnected != nil {
			h.OnConnected(ev.Data)
		}
	case EventCardMoved:
		if h.OnCardMoved != nil {
			h.OnCardMoved(ev.Data)
		}
	case EventCardUpdated:
		if h.OnCardUpdated != nil {
			h.OnCardUpdated(ev.Data)
		}
	case EventCardCreated:
		if h.OnCardCreated != nil {
			h.OnCardCreated(ev.Data)
		}
	case EventCardDeleted:
		if h.OnCardDeleted != nil {
			h.OnCardDeleted(ev.Data)
		}
	case EventError:
		c.logger.Error().Str("message", ev.Message()).Msg("live updates: error event")
		if h.OnError != nil {
			h.OnError(ev.Message())
		}
	}
}
