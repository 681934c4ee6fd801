package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/helper-gateway/internal/application"
	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// testServer accepts realtime connections, answers the auth handshake and
// hands every authenticated connection to the test.
type testServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	rejectToken string

	dials     atomic.Int32
	connected chan *websocket.Conn
	received  chan Frame

	mu     sync.Mutex
	bearer []string
}

func newTestServer(t *testing.T) *testServer {
	return newRejectingServer(t, "")
}

// newRejectingServer answers auth:invalid to handshakes carrying rejectToken.
func newRejectingServer(t *testing.T, rejectToken string) *testServer {
	t.Helper()

	ts := &testServer{
		t:           t,
		rejectToken: rejectToken,
		connected:   make(chan *websocket.Conn, 8),
		received:    make(chan Frame, 64),
	}
	ts.server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.dials.Add(1)
	ts.mu.Lock()
	ts.bearer = append(ts.bearer, r.Header.Get("Authorization"))
	ts.mu.Unlock()

	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	var auth struct {
		Event string      `json:"event"`
		Data  authPayload `json:"data"`
	}
	if err := json.Unmarshal(raw, &auth); err != nil || auth.Event != eventAuth {
		_ = conn.Close()
		return
	}
	if ts.rejectToken != "" && auth.Data.Token == ts.rejectToken {
		_ = writeFrame(conn, Frame{Event: domain.EventAuthInvalid})
		_ = conn.Close()
		return
	}
	if err := writeFrame(conn, Frame{Event: eventAuthOK}); err != nil {
		_ = conn.Close()
		return
	}

	ts.connected <- conn
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err == nil {
			ts.received <- frame
		}
	}
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http")
}

func (ts *testServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.connected:
		return conn
	case <-time.After(waitFor):
		t.Fatal("no realtime connection")
		return nil
	}
}

func (ts *testServer) nextFrame(t *testing.T, event string) Frame {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case frame := <-ts.received:
			if frame.Event == event {
				return frame
			}
		case <-deadline:
			t.Fatalf("no %s frame", event)
			return Frame{}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame Frame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func push(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, Frame{Event: event, Data: raw}))
}

func newTestChannel(t *testing.T, url string, session ports.Session) *Channel {
	t.Helper()

	channel, err := NewChannel(Config{
		URL:            url,
		ReconnectDelay: 10 * time.Millisecond,
		Logger:         zerolog.Nop(),
	}, session)
	require.NoError(t, err)
	t.Cleanup(channel.Disconnect)
	return channel
}

func signedIn(t *testing.T, token string) *application.SessionService {
	t.Helper()
	session := application.NewSessionService(nil, nil, nil)
	require.NoError(t, session.Login(context.Background(), domain.Credential{AccessToken: token, RefreshToken: "refresh"}))
	return session
}

func jwtWithExpiry(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"helper","exp":%d}`, exp.Unix())))
	return header + "." + payload + ".sig"
}

func TestChannelListenerFiresOnceAfterReconnect(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := signedIn(t, "token-1")
	channel := newTestChannel(t, ts.url(), session)

	var calls atomic.Int32
	listener := channel.Subscribe(domain.EventJobOffer, func(json.RawMessage) { calls.Add(1) })
	channel.On(domain.EventJobOffer, listener)

	require.NoError(t, channel.Connect(context.Background(), ""))
	first := ts.nextConn(t)
	assert.Equal(t, StateConnected, channel.State())

	require.NoError(t, first.Close())
	second := ts.nextConn(t)
	require.Eventually(t, func() bool { return channel.State() == StateConnected }, waitFor, 5*time.Millisecond)

	probe := make(chan struct{}, 1)
	channel.Subscribe("probe", func(json.RawMessage) { probe <- struct{}{} })

	push(t, second, domain.EventJobOffer, map[string]string{"jobId": "job-1"})
	push(t, second, "probe", nil)

	select {
	case <-probe:
	case <-time.After(waitFor):
		t.Fatal("probe not delivered")
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, channel.Registry().Len(domain.EventJobOffer))
	assert.Equal(t, int32(2), ts.dials.Load())
}

func TestChannelOffStopsDelivery(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), signedIn(t, "token-1"))

	var calls atomic.Int32
	listener := channel.Subscribe(domain.EventJobUpdated, func(json.RawMessage) { calls.Add(1) })
	probe := make(chan struct{}, 1)
	channel.Subscribe("probe", func(json.RawMessage) { probe <- struct{}{} })

	require.NoError(t, channel.Connect(context.Background(), ""))
	conn := ts.nextConn(t)

	channel.Off(domain.EventJobUpdated, listener)
	push(t, conn, domain.EventJobUpdated, map[string]string{"jobId": "job-1"})
	push(t, conn, "probe", nil)

	select {
	case <-probe:
	case <-time.After(waitFor):
		t.Fatal("probe not delivered")
	}
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, channel.Registry().Len(domain.EventJobUpdated))
}

func TestChannelOffWithoutListenerRemovesAll(t *testing.T) {
	t.Parallel()

	channel := newTestChannel(t, "ws://127.0.0.1:1", signedIn(t, "token-1"))
	channel.Subscribe(domain.EventChatMessage, func(json.RawMessage) {})
	channel.Subscribe(domain.EventChatMessage, func(json.RawMessage) {})
	require.Equal(t, 2, channel.Registry().Len(domain.EventChatMessage))

	channel.Off(domain.EventChatMessage, nil)
	assert.Equal(t, 0, channel.Registry().Len(domain.EventChatMessage))
}

func TestChannelConnectWithExpiredTokenDoesNotDial(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), application.NewSessionService(nil, nil, nil))

	err := channel.Connect(context.Background(), jwtWithExpiry(time.Now().Add(-time.Minute)))
	require.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, int32(0), ts.dials.Load())
	assert.Equal(t, StateDisconnected, channel.State())
}

func TestChannelConnectWithoutTokenDoesNotDial(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), application.NewSessionService(nil, nil, nil))

	require.ErrorIs(t, channel.Connect(context.Background(), ""), ErrNoToken)
	assert.Equal(t, int32(0), ts.dials.Load())
}

func TestChannelConnectIsNoopWhenConnected(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), signedIn(t, jwtWithExpiry(time.Now().Add(time.Hour))))

	require.NoError(t, channel.Connect(context.Background(), ""))
	ts.nextConn(t)
	require.NoError(t, channel.Connect(context.Background(), ""))
	assert.Equal(t, int32(1), ts.dials.Load())
}

func TestChannelAuthInvalidPushTearsDownSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := signedIn(t, "token-1")
	var reasons []domain.SignOutReason
	var mu sync.Mutex
	session.OnSignedOut(func(reason domain.SignOutReason) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, reason)
	})
	channel := newTestChannel(t, ts.url(), session)
	channel.Subscribe(domain.EventJobOffer, func(json.RawMessage) {})

	require.NoError(t, channel.Connect(context.Background(), ""))
	conn := ts.nextConn(t)

	push(t, conn, domain.EventAuthInvalid, nil)

	require.Eventually(t, func() bool { return channel.State() == StateDisconnected }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, channel.Registry().Events())
	assert.True(t, session.Get().IsZero())
	mu.Lock()
	assert.Equal(t, []domain.SignOutReason{domain.SignOutRealtimeReject}, reasons)
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.dials.Load())
}

func TestChannelHandshakeRejectionIsNotRetried(t *testing.T) {
	t.Parallel()

	ts := newRejectingServer(t, "revoked")
	session := signedIn(t, "revoked")
	channel := newTestChannel(t, ts.url(), session)

	err := channel.Connect(context.Background(), "")
	require.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, StateDisconnected, channel.State())
	assert.True(t, session.Get().IsZero())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.dials.Load())
}

func TestChannelTokenRotationUpdatesSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := signedIn(t, "token-1")
	channel := newTestChannel(t, ts.url(), session)

	rotated := make(chan json.RawMessage, 1)
	channel.Subscribe(domain.EventAuthTokenRotated, func(data json.RawMessage) { rotated <- data })

	require.NoError(t, channel.Connect(context.Background(), ""))
	conn := ts.nextConn(t)

	push(t, conn, domain.EventAuthTokenRotated, map[string]string{"token": "token-2"})

	select {
	case <-rotated:
	case <-time.After(waitFor):
		t.Fatal("rotation not delivered")
	}
	assert.Equal(t, domain.Credential{AccessToken: "token-2", RefreshToken: "refresh"}, session.Get())
	assert.Equal(t, StateConnected, channel.State())
	assert.Equal(t, int32(1), ts.dials.Load())
}

func TestChannelUpdateTokenSendsFrameInPlace(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), signedIn(t, "token-1"))

	require.NoError(t, channel.Connect(context.Background(), ""))
	ts.nextConn(t)

	channel.UpdateToken("token-2")
	frame := ts.nextFrame(t, eventAuthUpdate)
	assert.JSONEq(t, `{"token":"token-2"}`, string(frame.Data))
	assert.Equal(t, int32(1), ts.dials.Load())
}

func TestChannelRejoinsActiveJobOnConnect(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := signedIn(t, "token-1")
	require.NoError(t, session.SetActiveJobID(context.Background(), "job-77"))
	channel := newTestChannel(t, ts.url(), session)

	require.NoError(t, channel.Connect(context.Background(), ""))
	ts.nextConn(t)

	frame := ts.nextFrame(t, domain.EventJobJoin)
	assert.JSONEq(t, `{"jobId":"job-77"}`, string(frame.Data))

	ts.mu.Lock()
	assert.Equal(t, []string{"Bearer token-1"}, ts.bearer)
	ts.mu.Unlock()
}

func TestChannelEmitDropsWhenDisconnected(t *testing.T) {
	t.Parallel()

	channel := newTestChannel(t, "ws://127.0.0.1:1", signedIn(t, "token-1"))
	assert.False(t, channel.Emit(domain.EventLocationUpdate, domain.Location{Latitude: 1, Longitude: 2}))
}

func TestChannelTypedEmitters(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), signedIn(t, "token-1"))
	require.NoError(t, channel.Connect(context.Background(), ""))
	ts.nextConn(t)

	require.True(t, channel.SendLocation("job-1", domain.Location{Latitude: 48.85, Longitude: 2.35}))
	frame := ts.nextFrame(t, domain.EventLocationUpdate)
	assert.JSONEq(t, `{"jobId":"job-1","latitude":48.85,"longitude":2.35}`, string(frame.Data))
	assert.NotEmpty(t, frame.ID)

	require.True(t, channel.SendTyping("job-1", true))
	frame = ts.nextFrame(t, domain.EventChatTyping)
	assert.JSONEq(t, `{"jobId":"job-1","isTyping":true}`, string(frame.Data))

	require.True(t, channel.Ack("evt-9"))
	frame = ts.nextFrame(t, domain.EventAck)
	assert.JSONEq(t, `{"id":"evt-9"}`, string(frame.Data))
}

func TestChannelDisconnectClearsRegistry(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	channel := newTestChannel(t, ts.url(), signedIn(t, "token-1"))
	channel.Subscribe(domain.EventPaymentCompleted, func(json.RawMessage) {})

	require.NoError(t, channel.Connect(context.Background(), ""))
	ts.nextConn(t)

	channel.Disconnect()
	assert.Equal(t, StateDisconnected, channel.State())
	assert.Equal(t, 0, channel.Registry().Events())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.dials.Load())
}

// scriptedDialer hands out one working connection, then fails every dial.
type scriptedDialer struct {
	dials atomic.Int32
	first *fakeConn
}

func (d *scriptedDialer) Dial(context.Context, string, http.Header) (ports.RealtimeConn, error) {
	if d.dials.Add(1) == 1 {
		return d.first, nil
	}
	return nil, errors.New("connection refused")
}

type fakeConn struct {
	reads  chan []byte
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	deadlines []time.Time
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case raw := <-c.reads:
		return raw, nil
	case <-c.closed:
		return nil, errors.New("closed")
	}
}

func (c *fakeConn) WriteMessage([]byte) error { return nil }

func (c *fakeConn) SetReadDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, deadline)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type reconnectMetrics struct {
	ports.NopMetrics
	mu       sync.Mutex
	outcomes []string
}

func (m *reconnectMetrics) ObserveReconnect(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func TestChannelReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.reads <- []byte(`{"event":"auth:ok"}`)
	dialer := &scriptedDialer{first: conn}
	metrics := &reconnectMetrics{}

	channel, err := NewChannel(Config{
		URL:                  "ws://realtime.test",
		Namespace:            "/helpers",
		MaxReconnectAttempts: 3,
		ReconnectDelay:       time.Millisecond,
		Dialer:               dialer,
		Metrics:              metrics,
		Logger:               zerolog.Nop(),
	}, signedIn(t, "token-1"))
	require.NoError(t, err)
	t.Cleanup(channel.Disconnect)

	require.NoError(t, channel.Connect(context.Background(), ""))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return len(metrics.outcomes) == 4
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, channel.State())
	assert.Equal(t, int32(4), dialer.dials.Load())

	metrics.mu.Lock()
	assert.Equal(t, []string{"failed", "failed", "failed", "exhausted"}, metrics.outcomes)
	metrics.mu.Unlock()
}

func TestChannelConnectsAgainAfterReconnectGaveUp(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.reads <- []byte(`{"event":"auth:ok"}`)
	dialer := &scriptedDialer{first: conn}
	metrics := &reconnectMetrics{}

	channel, err := NewChannel(Config{
		URL:                  "ws://realtime.test",
		MaxReconnectAttempts: 1,
		ReconnectDelay:       time.Millisecond,
		Dialer:               dialer,
		Metrics:              metrics,
		Logger:               zerolog.Nop(),
	}, signedIn(t, "token-1"))
	require.NoError(t, err)
	t.Cleanup(channel.Disconnect)

	require.NoError(t, channel.Connect(context.Background(), ""))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return len(metrics.outcomes) == 2
	}, waitFor, 5*time.Millisecond)

	channel.mu.Lock()
	assert.Equal(t, StateDisconnected, channel.state)
	assert.Nil(t, channel.cancel)
	channel.mu.Unlock()

	err = channel.Connect(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, channel.State())

	channel.mu.Lock()
	assert.Nil(t, channel.cancel)
	channel.mu.Unlock()
}

func TestChannelStopsReconnectingAfterSignOut(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.reads <- []byte(`{"event":"auth:ok"}`)
	dialer := &scriptedDialer{first: conn}
	session := signedIn(t, "token-1")

	channel, err := NewChannel(Config{
		URL:            "ws://realtime.test",
		ReconnectDelay: time.Millisecond,
		Dialer:         dialer,
		Logger:         zerolog.Nop(),
	}, session)
	require.NoError(t, err)
	t.Cleanup(channel.Disconnect)

	require.NoError(t, channel.Connect(context.Background(), ""))
	require.NoError(t, session.Logout(context.Background()))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return channel.State() == StateDisconnected
	}, waitFor, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, StateDisconnected, channel.State())
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestChannelHandshakeDeadlineFollowsClock(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.reads <- []byte(`{"event":"auth:ok"}`)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	channel, err := NewChannel(Config{
		URL:              "ws://realtime.test",
		HandshakeTimeout: 3 * time.Second,
		Dialer:           &scriptedDialer{first: conn},
		Clock:            fixedClock{now: now},
		Logger:           zerolog.Nop(),
	}, signedIn(t, "token-1"))
	require.NoError(t, err)
	t.Cleanup(channel.Disconnect)

	require.NoError(t, channel.Connect(context.Background(), ""))

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, []time.Time{now.Add(3 * time.Second), {}}, conn.deadlines)
}

func TestChannelEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw       string
		namespace string
		want      string
		wantErr   bool
	}{
		{raw: "wss://rt.example.com", namespace: "/helpers", want: "wss://rt.example.com/helpers"},
		{raw: "https://api.example.com/socket/", namespace: "helpers", want: "wss://api.example.com/socket/helpers"},
		{raw: "http://localhost:3000", want: "ws://localhost:3000"},
		{raw: "ftp://example.com", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := channelEndpoint(tt.raw, tt.namespace)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	assert.True(t, tokenExpired(jwtWithExpiry(now.Add(-time.Second)), now))
	assert.False(t, tokenExpired(jwtWithExpiry(now.Add(time.Hour)), now))
	assert.False(t, tokenExpired("opaque-token", now))
	assert.False(t, tokenExpired("a.!!!.c", now))
}
