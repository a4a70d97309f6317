package config

import "time"

// RecorderConfig is the root configuration for a recorder instance.
type RecorderConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this recorder.
type InstanceConfig struct {
	ID      string `yaml:"id"`
	Account string `yaml:"account"`
}

// ServerConfig holds hedge server settings.
type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// BridgeConfig holds WebSocket client tuning.
type BridgeConfig struct {
	QueueCapacity        int           `yaml:"queue_capacity"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// DatabaseConfig holds the TimescaleDB connection for the event archive.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ArchiveConfig holds batch writer settings.
type ArchiveConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds the health endpoint settings.
type MetricsConfig struct {
	Port int `yaml:"port"`
}
