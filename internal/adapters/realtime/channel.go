package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoToken      = errors.New("realtime: no access token")
	ErrTokenExpired = errors.New("realtime: access token expired")
	ErrAuthRejected = errors.New("realtime: credential rejected")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

type Config struct {
	URL                  string
	Namespace            string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HandshakeTimeout     time.Duration
	Dialer               ports.RealtimeDialer
	Clock                ports.Clock
	Metrics              ports.Metrics
	Logger               zerolog.Logger
}

// Channel keeps one authenticated event connection per session. Listeners
// live in a Registry; each connection gets a fresh projection of it.
type Channel struct {
	endpoint   string
	session    ports.Session
	dialer     ports.RealtimeDialer
	clock      ports.Clock
	metrics    ports.Metrics
	logger     zerolog.Logger
	maxRetries int
	delay      time.Duration
	handshake  time.Duration

	registry *Registry

	mu         sync.Mutex
	state      State
	token      string
	conn       *liveConn
	generation uint64
	attempts   int
	cancel     context.CancelFunc
}

func NewChannel(cfg Config, session ports.Session) (*Channel, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}

	endpoint, err := channelEndpoint(cfg.URL, cfg.Namespace)
	if err != nil {
		return nil, err
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	maxRetries := cfg.MaxReconnectAttempts
	if maxRetries <= 0 {
		maxRetries = 5
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}

	return &Channel{
		endpoint:   endpoint,
		session:    session,
		dialer:     dialer,
		clock:      clock,
		metrics:    metrics,
		logger:     cfg.Logger.With().Str("component", "realtime").Logger(),
		maxRetries: maxRetries,
		delay:      delay,
		handshake:  handshake,
		registry:   NewRegistry(),
		state:      StateDisconnected,
	}, nil
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Registry() *Registry {
	return c.registry
}

// Connect opens the channel with token, or with the session credential when
// token is empty. It is a no-op while a connection is live or being opened.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		token = c.session.Get().AccessToken
	}
	if token == "" {
		return ErrNoToken
	}
	if tokenExpired(token, c.clock.Now()) {
		return ErrTokenExpired
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.token = token
	c.attempts = 0
	c.generation++
	gen := c.generation
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.open(ctx, runCtx, gen); err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.state = StateDisconnected
			c.cancel = nil
			cancel()
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// On registers listener for event. It is stored whatever the connection
// state and attached to the live connection when there is one.
func (c *Channel) On(event string, listener *Listener) {
	if listener == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Add(event, listener)
	if c.conn != nil {
		c.conn.attach(event, listener)
	}
}

func (c *Channel) Subscribe(event string, fn Handler) *Listener {
	listener := NewListener(fn)
	c.On(event, listener)
	return listener
}

// Off removes listener from event, or all listeners of event when listener
// is nil.
func (c *Channel) Off(event string, listener *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Remove(event, listener)
	if c.conn != nil {
		c.conn.detach(event, listener)
	}
}

// Emit sends event only while connected. Frames emitted otherwise are
// dropped.
func (c *Channel) Emit(event string, payload any) bool {
	c.mu.Lock()
	live := c.conn
	state := c.state
	c.mu.Unlock()

	if live == nil || state != StateConnected {
		c.logger.Debug().Str("event", event).Str("state", string(state)).Msg("not connected, dropping event")
		return false
	}

	frame, err := encodeFrame(event, payload, uuid.NewString())
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("encode event")
		return false
	}
	if err := live.write(frame); err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("send event")
		return false
	}
	return true
}

// Disconnect ends the session's connection and forgets every listener.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	live := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.state = StateDisconnected
	c.generation++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if live != nil {
		live.close()
	}
	c.registry.Clear()
}

// UpdateToken swaps the bearer used by the live connection and by future
// handshakes without reconnecting.
func (c *Channel) UpdateToken(token string) {
	if token == "" {
		return
	}

	c.mu.Lock()
	if c.token == token {
		c.mu.Unlock()
		return
	}
	c.token = token
	live := c.conn
	c.mu.Unlock()

	if live == nil {
		return
	}
	frame, err := encodeFrame(eventAuthUpdate, authPayload{Token: token}, "")
	if err != nil {
		return
	}
	if err := live.write(frame); err != nil {
		c.logger.Warn().Err(err).Msg("send token update")
	}
}

func (c *Channel) JoinJobRoom(jobID string) bool {
	return c.Emit(domain.EventJobJoin, map[string]string{"jobId": jobID})
}

func (c *Channel) SendLocation(jobID string, location domain.Location) bool {
	return c.Emit(domain.EventLocationUpdate, struct {
		JobID string `json:"jobId,omitempty"`
		domain.Location
	}{JobID: jobID, Location: location})
}

func (c *Channel) SendChatMessage(jobID, content string) bool {
	return c.Emit(domain.EventChatSend, map[string]string{"jobId": jobID, "content": content})
}

func (c *Channel) SendTyping(jobID string, typing bool) bool {
	return c.Emit(domain.EventChatTyping, map[string]any{"jobId": jobID, "isTyping": typing})
}

func (c *Channel) MarkChatRead(jobID string) bool {
	return c.Emit(domain.EventChatMarkRead, map[string]string{"jobId": jobID})
}

func (c *Channel) Ack(id string) bool {
	return c.Emit(domain.EventAck, map[string]string{"id": id})
}

// open dials, authenticates and installs a connection for generation gen.
func (c *Channel) open(dialCtx, runCtx context.Context, gen uint64) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, err := c.dialer.Dial(dialCtx, c.endpoint, header)
	if err != nil {
		if errors.Is(err, ErrAuthRejected) {
			c.invalidate()
		}
		return err
	}

	if err := c.authenticate(conn, token); err != nil {
		_ = conn.Close()
		if errors.Is(err, ErrAuthRejected) {
			c.invalidate()
		}
		return err
	}

	c.mu.Lock()
	if c.generation != gen || c.state == StateDisconnected {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("realtime: connection superseded")
	}
	live := newLiveConn(conn, c.registry.snapshot())
	c.conn = live
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info().Str("endpoint", c.endpoint).Msg("realtime connected")
	go c.readLoop(runCtx, live, gen)

	if jobID := c.session.ActiveJobID(); jobID != "" {
		c.JoinJobRoom(jobID)
	}
	return nil
}

func (c *Channel) authenticate(conn ports.RealtimeConn, token string) error {
	frame, err := encodeFrame(eventAuth, authPayload{Token: token}, "")
	if err != nil {
		return fmt.Errorf("encode auth frame: %w", err)
	}
	if err := conn.WriteMessage(frame); err != nil {
		return fmt.Errorf("send auth frame: %w", err)
	}

	if err := conn.SetReadDeadline(c.clock.Now().Add(c.handshake)); err != nil {
		return fmt.Errorf("set handshake deadline: %w", err)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read auth response: %w", err)
		}
		reply, err := decodeFrame(raw)
		if err != nil {
			continue
		}
		switch reply.Event {
		case eventAuthOK:
			return nil
		case domain.EventAuthInvalid:
			return ErrAuthRejected
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, live *liveConn, gen uint64) {
	for {
		raw, err := live.conn.ReadMessage()
		if err != nil {
			c.handleDrop(ctx, live, gen, err)
			return
		}

		frame, err := decodeFrame(raw)
		if err != nil {
			c.logger.Debug().Err(err).Msg("skip malformed frame")
			continue
		}

		switch frame.Event {
		case domain.EventAuthInvalid:
			c.logger.Warn().Msg("server rejected credential")
			c.invalidate()
			return
		case domain.EventAuthTokenRotated:
			c.rotate(ctx, frame.Data)
		}

		live.dispatch(c.logger, frame)
	}
}

func (c *Channel) rotate(ctx context.Context, data json.RawMessage) {
	var payload rotatedPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.accessToken() == "" {
		c.logger.Warn().Msg("token rotation without token")
		return
	}

	c.mu.Lock()
	c.token = payload.accessToken()
	c.mu.Unlock()

	cred := domain.Credential{AccessToken: payload.accessToken(), RefreshToken: payload.RefreshToken}
	if err := c.session.Rotate(ctx, cred); err != nil {
		c.logger.Warn().Err(err).Msg("store rotated token")
	}
}

// invalidate handles a credential rejection: the session is cleared and the
// channel torn down without reconnecting.
func (c *Channel) invalidate() {
	if err := c.session.Clear(context.Background(), domain.SignOutRealtimeReject); err != nil {
		c.logger.Warn().Err(err).Msg("clear session after rejection")
	}
	c.Disconnect()
}

func (c *Channel) handleDrop(ctx context.Context, live *liveConn, gen uint64, cause error) {
	c.mu.Lock()
	if c.conn != live {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateConnecting
	c.mu.Unlock()

	live.close()
	c.logger.Warn().Err(cause).Msg("realtime connection dropped")
	c.reconnect(ctx, gen)
}

// reconnect retries with a linear delay until it succeeds, the attempt budget
// runs out, or the generation is superseded.
func (c *Channel) reconnect(ctx context.Context, gen uint64) {
	for {
		c.mu.Lock()
		if c.generation != gen || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.maxRetries {
			c.mu.Unlock()
			c.markDisconnected(gen)
			c.metrics.ObserveReconnect("exhausted")
			c.logger.Error().Int("attempts", c.maxRetries).Msg("realtime reconnect gave up")
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if err := sleepContext(ctx, c.delay*time.Duration(attempt)); err != nil {
			return
		}

		token := c.session.Get().AccessToken
		if token == "" {
			c.logger.Info().Msg("session signed out, not reconnecting")
			c.markDisconnected(gen)
			return
		}
		if tokenExpired(token, c.clock.Now()) {
			c.logger.Warn().Msg("access token expired, not reconnecting")
			c.markDisconnected(gen)
			return
		}
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()

		err := c.open(ctx, ctx, gen)
		if err == nil {
			c.metrics.ObserveReconnect("ok")
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			return
		}
		c.metrics.ObserveReconnect("failed")
		c.logger.Debug().Err(err).Int("attempt", attempt).Msg("realtime reconnect failed")
	}
}

// markDisconnected ends generation gen and releases its run context.
func (c *Channel) markDisconnected(gen uint64) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// liveConn is the disposable projection of the registry onto one transport.
type liveConn struct {
	conn ports.RealtimeConn

	writeMu sync.Mutex

	mu        sync.RWMutex
	listeners map[string][]*Listener

	closeOnce sync.Once
}

func newLiveConn(conn ports.RealtimeConn, listeners map[string][]*Listener) *liveConn {
	return &liveConn{conn: conn, listeners: listeners}
}

func (l *liveConn) attach(event string, listener *Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addListener(l.listeners, event, listener)
}

func (l *liveConn) detach(event string, listener *Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removeListener(l.listeners, event, listener)
}

func (l *liveConn) dispatch(logger zerolog.Logger, frame Frame) {
	l.mu.RLock()
	listeners := append([]*Listener(nil), l.listeners[frame.Event]...)
	l.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Str("event", frame.Event).Msg("listener panicked")
				}
			}()
			listener.fn(frame.Data)
		}()
	}
}

func (l *liveConn) write(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(frame)
}

func (l *liveConn) close() {
	l.closeOnce.Do(func() { _ = l.conn.Close() })
}

func channelEndpoint(rawURL, namespace string) (string, error) {
	if rawURL == "" {
		return "", errors.New("realtime url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", errors.New("realtime url must use ws, wss, http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("realtime url host is required")
	}

	if namespace != "" {
		parsed.Path = strings.TrimRight(parsed.Path, "/") + "/" + strings.TrimLeft(namespace, "/")
	}
	return parsed.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
