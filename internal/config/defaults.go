package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerURL            = "ws://127.0.0.1:8080"
	DefaultQueueCapacity        = 1024
	DefaultConnectTimeout       = 5 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultMetricsPort          = 9090
)

func (c *RecorderConfig) applyDefaults() {
	// Server defaults
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}

	// Bridge defaults
	if c.Bridge.QueueCapacity == 0 {
		c.Bridge.QueueCapacity = DefaultQueueCapacity
	}
	if c.Bridge.ConnectTimeout == 0 {
		c.Bridge.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Bridge.HeartbeatInterval == 0 {
		c.Bridge.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Bridge.ReconnectBaseDelay == 0 {
		c.Bridge.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Bridge.ReconnectMaxDelay == 0 {
		c.Bridge.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Bridge.MaxReconnectAttempts == 0 {
		c.Bridge.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
