package hedgews

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rnrnstar2/ArbitrageAssistant/internal/backoff"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/ring"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/stats"
)

// Client is a reconnecting WebSocket client. All methods are safe for
// concurrent use; Receive is additionally wait-free so hosts can poll
// it from latency-sensitive loops.
//
// Sessions are identified by an epoch counter. Every teardown bumps
// the epoch, so callbacks from a dead session compare stale and fall
// through without touching client state.
type Client struct {
	cfg    Config
	logger *slog.Logger

	state *stateVar
	queue *ring.Ring[string]
	stats stats.Registry
	rec   *reconnector

	epoch    atomic.Uint64
	lastPong atomic.Int64

	// pushMu serializes session readers feeding the queue; the ring
	// itself is safe for one producer only, and a superseded session's
	// reader can briefly overlap its replacement.
	pushMu sync.Mutex

	mu      sync.Mutex
	url     string
	token   string
	session Session
	running bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Stats is a point-in-time snapshot of the client counters.
type Stats struct {
	State             ConnectionState
	MessagesSent      uint64
	MessagesReceived  uint64
	MessagesDropped   uint64
	QueueDepth        int
	ReconnectAttempts int
	ConnectedFor      time.Duration
}

// NewClient builds a client from cfg. Zero cfg fields take defaults;
// a nil logger falls back to slog.Default. The client is idle until
// Connect is called.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	if cfg.Dialer == nil {
		cfg.Dialer = newGorillaDialer(cfg.HandshakeTimeout, cfg.WriteTimeout, logger)
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		state:  newStateVar(),
		queue:  ring.New[string](cfg.QueueCapacity),
	}
	policy := backoff.Policy{
		Base:        cfg.ReconnectBaseDelay,
		Cap:         cfg.ReconnectMaxDelay,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}
	c.rec = newReconnector(policy, c.state, &c.stats, logger, c.redial)
	return c
}

// Connect establishes a session to url, authenticating with token when
// it is non-empty. A fresh call always resets the retry budget, even
// when a previous endpoint is still attached.
//
// The outcome is three-valued: nil means the session is established,
// ErrReconnectPending means the attempt failed but recovery is armed,
// and any other error is terminal for this connect cycle.
func (c *Client) Connect(url, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	old := c.session
	c.session = nil
	c.invalidateLocked()
	c.url, c.token = url, token
	c.mu.Unlock()

	c.rec.reset()
	c.stats.SetAttempts(0)
	c.stats.ClearLastError()

	if old != nil {
		old.Close("superseded")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if !c.running {
		c.running = true
		c.done = make(chan struct{})
		c.wg.Add(1)
		go c.heartbeatLoop(c.done)
	}
	c.state.Store(StateConnecting)
	c.startSessionLocked()
	c.mu.Unlock()

	c.logger.Info("connecting", "url", url)
	return c.waitConnected()
}

// waitConnected blocks until the pending connect resolves. Transitions
// wake it via the state broadcast channel; a short poll covers any
// notification raced away between reads.
func (c *Client) waitConnected() error {
	deadline := time.NewTimer(c.cfg.ConnectTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(c.cfg.ConnectPollInterval)
	defer poll.Stop()

	for {
		ch := c.state.changed()
		if done, err := c.connectOutcome(); done {
			return err
		}

		select {
		case <-ch:
		case <-poll.C:
		case <-deadline.C:
			c.logger.Warn("connect timed out", "timeout", c.cfg.ConnectTimeout)
			c.stats.SetLastError("connection timeout")
			c.escalate()
			if done, err := c.connectOutcome(); done {
				return err
			}
			return ErrReconnectPending
		}
	}
}

func (c *Client) connectOutcome() (bool, error) {
	switch c.state.Load() {
	case StateConnected:
		return true, nil
	case StateReconnecting:
		return true, ErrReconnectPending
	case StateFailed:
		return true, ErrRetryExhausted
	case StateDisconnected:
		return true, ErrNotConnected
	}
	return false, nil
}

// Disconnect tears the client down: the reconnect timer is dropped,
// the session is closed, the heartbeat goroutine is joined, and the
// counters reset. It is idempotent and always wins over a concurrent
// connect or recovery cycle.
func (c *Client) Disconnect() {
	c.rec.disable()

	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	old := c.session
	c.session = nil
	c.invalidateLocked()
	c.state.Store(StateDisconnected)
	c.mu.Unlock()

	if old != nil {
		old.Close("client disconnect")
	}
	c.wg.Wait()
	c.stats.Reset()

	if wasRunning {
		c.logger.Info("disconnected")
	}
}

// Close disconnects and permanently retires the client.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
}

// Send writes one text message on the current session. Transport
// failures are recorded and escalate into a recovery cycle, exactly
// like a failed liveness probe.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	sess := c.session
	c.mu.Unlock()

	if sess == nil || c.state.Load() != StateConnected {
		c.stats.SetLastError(ErrNotConnected.Error())
		return ErrNotConnected
	}

	if err := sess.Send(text); err != nil {
		c.logger.Warn("send failed", "error", err)
		c.stats.SetLastError(fmt.Sprintf("send failed: %v", err))
		c.escalate()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	c.stats.AddSent()
	return nil
}

// Receive pops the oldest buffered message without blocking. ok is
// false when the buffer is empty.
func (c *Client) Receive() (msg string, ok bool) {
	return c.queue.Pop()
}

// State returns the current lifecycle state.
func (c *Client) State() ConnectionState {
	return c.state.Load()
}

// IsConnected reports whether a session is established.
func (c *Client) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// LastError returns the most recent recorded failure, or "" if none.
func (c *Client) LastError() string {
	return c.stats.LastError()
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		State:             c.state.Load(),
		MessagesSent:      c.stats.Sent(),
		MessagesReceived:  c.stats.Received(),
		MessagesDropped:   c.stats.Dropped(),
		QueueDepth:        c.queue.Len(),
		ReconnectAttempts: c.stats.Attempts(),
		ConnectedFor:      c.stats.ConnectedFor(time.Now()),
	}
}

func (c *Client) invalidateLocked() {
	c.epoch.Add(1)
}

// startSessionLocked launches a dial for the configured endpoint under
// a fresh epoch. Callers hold c.mu.
func (c *Client) startSessionLocked() {
	epoch := c.epoch.Add(1)
	go c.dial(epoch, c.url, c.token)
}

func (c *Client) dial(epoch uint64, url, token string) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()

	sess, err := c.cfg.Dialer.Dial(ctx, url, header, SessionEvents{
		OnClose:   func(err error) { c.sessionLost(epoch, fmt.Errorf("connection closed: %w", err)) },
		OnFail:    func(err error) { c.sessionLost(epoch, fmt.Errorf("connection failed: %w", err)) },
		OnMessage: func(text string) { c.handleMessage(epoch, text) },
		OnPong:    func() { c.handlePong(epoch) },
	})
	if err != nil {
		c.sessionLost(epoch, fmt.Errorf("%w: %v", ErrConnectFailed, err))
		return
	}

	c.mu.Lock()
	if !c.running || epoch != c.epoch.Load() {
		c.mu.Unlock()
		sess.Close("superseded")
		return
	}
	c.session = sess
	c.state.Store(StateConnected)
	c.stats.MarkConnected(time.Now())
	c.stats.SetAttempts(0)
	c.stats.ClearLastError()
	c.lastPong.Store(time.Now().UnixNano())
	c.mu.Unlock()

	c.rec.cancel()
	c.logger.Info("connected", "url", url)
}

// sessionLost handles a dead session: dial failures, peer closes and
// transport errors all land here. Events from a superseded epoch are
// ignored.
func (c *Client) sessionLost(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch.Load() {
		c.mu.Unlock()
		return
	}
	c.invalidateLocked()
	c.session = nil
	running := c.running
	c.mu.Unlock()

	c.logger.Warn("session lost", "error", err)
	c.stats.MarkDisconnected()
	c.stats.SetLastError(err.Error())
	if running {
		c.rec.schedule()
	}
}

// escalate tears down the current session, if any, and arms a recovery
// cycle. Liveness failures funnel through here.
func (c *Client) escalate() {
	c.mu.Lock()
	old := c.session
	c.session = nil
	if old != nil {
		c.invalidateLocked()
	}
	running := c.running
	c.mu.Unlock()

	if old != nil {
		old.Close("stale connection")
		c.stats.MarkDisconnected()
	}
	if running {
		c.rec.schedule()
	}
}

// redial runs when the backoff timer fires. The previous session is
// fully closed before the new dial starts, so at most one session
// reader feeds the queue at any time.
func (c *Client) redial() {
	c.mu.Lock()
	if !c.running || c.state.Load() != StateReconnecting {
		c.mu.Unlock()
		return
	}
	old := c.session
	c.session = nil
	c.invalidateLocked()
	c.state.Store(StateConnecting)
	c.mu.Unlock()

	if old != nil {
		old.Close("reconnecting")
	}

	c.mu.Lock()
	if c.running && c.state.Load() == StateConnecting {
		c.startSessionLocked()
	}
	c.mu.Unlock()
}

func (c *Client) handleMessage(epoch uint64, text string) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	if epoch != c.epoch.Load() {
		return
	}
	if !c.queue.Push(text) {
		c.stats.AddDropped()
		c.stats.SetLastError(ErrQueueOverflow.Error())
		c.logger.Warn("message buffer full, dropping message",
			"dropped", c.stats.Dropped())
		return
	}
	c.stats.AddReceived()
}

func (c *Client) handlePong(epoch uint64) {
	if epoch != c.epoch.Load() {
		return
	}
	c.lastPong.Store(time.Now().UnixNano())
}
