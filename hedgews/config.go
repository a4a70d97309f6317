package hedgews

import "time"

// Config controls a Client. Zero fields are replaced with the
// DefaultConfig values when the client is constructed.
type Config struct {
	// QueueCapacity bounds the inbound message buffer. Once full,
	// new messages are dropped and counted, never blocked on.
	QueueCapacity int

	// ConnectTimeout bounds how long Connect waits for the session
	// to become established before arming a retry.
	ConnectTimeout time.Duration

	// ConnectPollInterval is the fallback polling cadence used while
	// Connect waits for a state transition.
	ConnectPollInterval time.Duration

	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// HeartbeatInterval is the cadence of liveness probes. A session
	// with no ack for twice this interval is considered stale and
	// torn down for reconnection.
	HeartbeatInterval time.Duration

	// ReconnectBaseDelay seeds the exponential backoff schedule.
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the backoff schedule.
	ReconnectMaxDelay time.Duration

	// MaxReconnectAttempts bounds consecutive recovery cycles before
	// the client parks in the failed state.
	MaxReconnectAttempts int

	// Dialer opens sessions. Nil selects the gorilla/websocket dialer.
	Dialer Dialer
}

// DefaultConfig returns the settings used by the package-level client.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:        1024,
		ConnectTimeout:       5 * time.Second,
		ConnectPollInterval:  100 * time.Millisecond,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ConnectPollInterval <= 0 {
		c.ConnectPollInterval = def.ConnectPollInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
}
