package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *RecorderConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}

	if c.Bridge.QueueCapacity < 1 {
		return errors.New("bridge.queue_capacity must be >= 1")
	}
	if c.Bridge.MaxReconnectAttempts < 1 {
		return errors.New("bridge.max_reconnect_attempts must be >= 1")
	}
	if c.Bridge.ReconnectBaseDelay > c.Bridge.ReconnectMaxDelay {
		return fmt.Errorf("bridge.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Bridge.ReconnectBaseDelay, c.Bridge.ReconnectMaxDelay)
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Archive.BatchSize < 1 {
		return errors.New("archive.batch_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
