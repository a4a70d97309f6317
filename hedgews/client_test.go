package hedgews

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig keeps timers short and heartbeats out of the way unless a
// test opts in.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ConnectPollInterval = 10 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	cfg.HeartbeatInterval = time.Hour
	cfg.ReconnectBaseDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 100 * time.Millisecond
	return cfg
}

func mockWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// stubDialer hands out in-memory sessions so failures can be injected
// without a network in the way.
type stubDialer struct {
	mu       sync.Mutex
	dialErr  error
	sessions []*stubSession
	attempts atomic.Int32
}

func (d *stubDialer) Dial(_ context.Context, _ string, _ http.Header, events SessionEvents) (Session, error) {
	d.attempts.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := &stubSession{events: events}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *stubDialer) setDialErr(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

func (d *stubDialer) session(i int) *stubSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

type stubSession struct {
	events  SessionEvents
	mu      sync.Mutex
	sent    []string
	sendErr error
	closed  bool
}

func (s *stubSession) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubSession) Ping(string) error { return nil }

func (s *stubSession) Close(string) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubSession) setSendErr(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

func (s *stubSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestClient_ConnectSendReceive(t *testing.T) {
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewClient(testConfig(), testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), "test-token"); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}
	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after successful connect")
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}

	if err := c.Send("hello"); err != nil {
		t.Fatalf("Send() = %v, want nil", err)
	}
	if got := c.Stats().MessagesSent; got != 1 {
		t.Errorf("MessagesSent = %d, want 1", got)
	}

	waitFor(t, 2*time.Second, func() bool {
		return c.Stats().MessagesReceived == 1
	}, "echo not received")

	msg, ok := c.Receive()
	if !ok || msg != "hello" {
		t.Errorf("Receive() = %q, %v, want %q, true", msg, ok, "hello")
	}

	c.Disconnect()
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() after Disconnect = %v, want %v", got, StateDisconnected)
	}
	if got := c.Stats().MessagesSent; got != 0 {
		t.Errorf("MessagesSent after Disconnect = %d, want 0", got)
	}
}

func TestClient_ReceiveInOrder(t *testing.T) {
	msgs := []string{"m1", "m2", "m3", "m4", "m5"}
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewClient(testConfig(), testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return c.Stats().MessagesReceived == uint64(len(msgs))
	}, "messages not received")

	for i, want := range msgs {
		got, ok := c.Receive()
		if !ok || got != want {
			t.Fatalf("Receive() #%d = %q, %v, want %q, true", i, got, ok, want)
		}
	}
	if _, ok := c.Receive(); ok {
		t.Error("Receive() on drained buffer reported ok")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	c := NewClient(testConfig(), testLogger())
	defer c.Close()

	err := c.Send("hello")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want %v", err, ErrNotConnected)
	}
	if got := c.LastError(); got != ErrNotConnected.Error() {
		t.Errorf("LastError() = %q, want %q", got, ErrNotConnected.Error())
	}
}

func TestClient_QueueOverflowDropsNewest(t *testing.T) {
	const total = 5
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < total; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte("msg")); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	cfg := testConfig()
	cfg.QueueCapacity = 2
	c := NewClient(cfg, testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return c.Stats().MessagesDropped == total-2
	}, "drops not counted")

	st := c.Stats()
	if st.MessagesReceived != 2 {
		t.Errorf("MessagesReceived = %d, want 2", st.MessagesReceived)
	}
	if st.QueueDepth != 2 {
		t.Errorf("QueueDepth = %d, want 2", st.QueueDepth)
	}
	if got := c.LastError(); got != ErrQueueOverflow.Error() {
		t.Errorf("LastError() = %q, want %q", got, ErrQueueOverflow.Error())
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v; overflow must not trigger reconnect", got, StateConnected)
	}
}

func TestClient_ReconnectOnServerClose(t *testing.T) {
	var conns atomic.Int32
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			time.Sleep(50 * time.Millisecond)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewClient(testConfig(), testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return conns.Load() >= 2 && c.IsConnected()
	}, "client did not reconnect after server close")

	if got := c.Stats().ReconnectAttempts; got != 0 {
		t.Errorf("ReconnectAttempts after recovery = %d, want 0", got)
	}
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := testConfig()
	cfg.MaxReconnectAttempts = 2
	c := NewClient(cfg, testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	srv.CloseClientConnections()
	srv.Close()

	waitFor(t, 3*time.Second, func() bool {
		return c.State() == StateFailed
	}, "client did not reach failed state")

	if got := c.Stats().ReconnectAttempts; got != 2 {
		t.Errorf("ReconnectAttempts = %d, want 2", got)
	}
	if got := c.LastError(); got != ErrRetryExhausted.Error() {
		t.Errorf("LastError() = %q, want %q", got, ErrRetryExhausted.Error())
	}

	// A fresh explicit connect must re-arm the budget.
	srv2 := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv2.Close()

	if err := c.Connect(wsURL(srv2), ""); err != nil {
		t.Fatalf("Connect() after failed state = %v, want nil", err)
	}
	if got := c.Stats().ReconnectAttempts; got != 0 {
		t.Errorf("ReconnectAttempts after fresh connect = %d, want 0", got)
	}
}

func TestClient_ConnectRefusedArmsRetry(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond
	cfg.MaxReconnectAttempts = 1
	c := NewClient(cfg, testLogger())
	defer c.Close()

	err := c.Connect("ws://127.0.0.1:1", "")
	if !errors.Is(err, ErrReconnectPending) {
		t.Fatalf("Connect() = %v, want %v", err, ErrReconnectPending)
	}
	if got := c.Stats().ReconnectAttempts; got != 1 {
		t.Errorf("ReconnectAttempts = %d, want 1", got)
	}

	waitFor(t, 3*time.Second, func() bool {
		return c.State() == StateFailed
	}, "client did not exhaust its budget")
}

func TestClient_ConnectTimeoutArmsRetry(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	d := &hangingDialer{release: release}
	cfg := testConfig()
	cfg.Dialer = d
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.HandshakeTimeout = 200 * time.Millisecond
	cfg.ReconnectBaseDelay = time.Hour
	c := NewClient(cfg, testLogger())
	defer c.Close()

	err := c.Connect("ws://stub", "")
	if !errors.Is(err, ErrReconnectPending) {
		t.Fatalf("Connect() = %v, want %v", err, ErrReconnectPending)
	}
	if got := c.State(); got != StateReconnecting {
		t.Errorf("State() = %v, want %v", got, StateReconnecting)
	}
	if got := c.LastError(); got != "connection timeout" {
		t.Errorf("LastError() = %q, want %q", got, "connection timeout")
	}
}

type hangingDialer struct {
	release chan struct{}
}

func (d *hangingDialer) Dial(ctx context.Context, _ string, _ http.Header, _ SessionEvents) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.release:
		return nil, errors.New("released")
	}
}

func TestClient_SendFailureEscalates(t *testing.T) {
	d := &stubDialer{}
	cfg := testConfig()
	cfg.Dialer = d
	cfg.ReconnectBaseDelay = time.Hour
	c := NewClient(cfg, testLogger())
	defer c.Close()

	if err := c.Connect("ws://stub", ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	d.session(0).setSendErr(errors.New("broken pipe"))
	err := c.Send("x")
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send() = %v, want %v", err, ErrSendFailed)
	}

	waitFor(t, time.Second, func() bool {
		return c.State() == StateReconnecting
	}, "send failure did not escalate")

	if !d.session(0).isClosed() {
		t.Error("broken session was not closed")
	}
	if got := c.Stats().ReconnectAttempts; got != 1 {
		t.Errorf("ReconnectAttempts = %d, want 1", got)
	}
	if got := c.LastError(); !strings.Contains(got, "send failed") {
		t.Errorf("LastError() = %q, want send failure", got)
	}
}

func TestClient_StaleSessionEventsIgnored(t *testing.T) {
	d := &stubDialer{}
	cfg := testConfig()
	cfg.Dialer = d
	cfg.ReconnectBaseDelay = time.Hour
	c := NewClient(cfg, testLogger())
	defer c.Close()

	if err := c.Connect("ws://stub", ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	s1 := d.session(0)
	s1.events.OnMessage("live")
	waitFor(t, time.Second, func() bool {
		return c.Stats().MessagesReceived == 1
	}, "live message not buffered")

	s1.events.OnFail(errors.New("torn"))
	waitFor(t, time.Second, func() bool {
		return c.State() == StateReconnecting
	}, "failure did not escalate")

	s1.events.OnMessage("stale")
	time.Sleep(20 * time.Millisecond)
	if got := c.Stats().MessagesReceived; got != 1 {
		t.Errorf("MessagesReceived = %d, want 1; stale session leaked a message", got)
	}

	msg, ok := c.Receive()
	if !ok || msg != "live" {
		t.Errorf("Receive() = %q, %v, want %q, true", msg, ok, "live")
	}
}

func TestClient_DisconnectCancelsRetry(t *testing.T) {
	d := &stubDialer{}
	d.setDialErr(errors.New("refused"))
	cfg := testConfig()
	cfg.Dialer = d
	cfg.ReconnectBaseDelay = 30 * time.Millisecond
	c := NewClient(cfg, testLogger())
	defer c.Close()

	err := c.Connect("ws://stub", "")
	if !errors.Is(err, ErrReconnectPending) {
		t.Fatalf("Connect() = %v, want %v", err, ErrReconnectPending)
	}
	dialsBefore := d.attempts.Load()

	c.Disconnect()
	time.Sleep(100 * time.Millisecond)

	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
	if got := d.attempts.Load(); got != dialsBefore {
		t.Errorf("dial attempts after Disconnect = %d, want %d; timer not canceled", got, dialsBefore)
	}
	if got := c.Stats().ReconnectAttempts; got != 0 {
		t.Errorf("ReconnectAttempts after Disconnect = %d, want 0", got)
	}
}

func TestClient_DisconnectDuringConnecting(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	cfg := testConfig()
	cfg.Dialer = &hangingDialer{release: release}
	cfg.ConnectTimeout = 5 * time.Second
	c := NewClient(cfg, testLogger())
	defer c.Close()

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect("ws://stub", "") }()

	waitFor(t, time.Second, func() bool {
		return c.State() == StateConnecting
	}, "connect did not start")

	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Disconnect did not return while a dial was in flight")
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}

	select {
	case err := <-connectErr:
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Connect() = %v, want %v", err, ErrNotConnected)
		}
	case <-time.After(time.Second):
		t.Fatal("Connect did not observe the disconnect")
	}
}

func TestClient_DisconnectIdempotent(t *testing.T) {
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewClient(testConfig(), testLogger())
	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	c.Disconnect()
	c.Disconnect()
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}

	c.Close()
	c.Close()
	if err := c.Connect(wsURL(srv), ""); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Connect() after Close = %v, want %v", err, ErrClientClosed)
	}
}

func TestClient_HeartbeatTimeoutEscalates(t *testing.T) {
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read, so pings are never acknowledged.
		time.Sleep(2 * time.Second)
	})
	defer srv.Close()

	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.ReconnectBaseDelay = time.Hour
	c := NewClient(cfg, testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return c.State() == StateReconnecting
	}, "stale connection not escalated")

	if got := c.LastError(); got != ErrHeartbeatTimeout.Error() {
		t.Errorf("LastError() = %q, want %q", got, ErrHeartbeatTimeout.Error())
	}
}

func TestClient_HeartbeatKeepsHealthySession(t *testing.T) {
	srv := mockWSServer(t, func(conn *websocket.Conn) {
		// Reading services the ping handler, which answers with pongs.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	c := NewClient(cfg, testLogger())
	defer c.Close()

	if err := c.Connect(wsURL(srv), ""); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v; healthy session was escalated", got, StateConnected)
	}
	if got := c.LastError(); got != "" {
		t.Errorf("LastError() = %q, want empty", got)
	}
}

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateReconnecting, "reconnecting"},
		{StateFailed, "failed"},
		{ConnectionState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
