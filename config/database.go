package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// DatabaseConfig defines the audit store connection settings.
// The store is optional: an empty DSN disables it.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" json:"dsn"`                         // PostgreSQL connection string
	MaxConnections int    `yaml:"max_connections" json:"max_connections"` // Maximum number of connections
	MinConnections int    `yaml:"min_connections" json:"min_connections"` // Minimum number of connections
	MaxIdleTime    string `yaml:"max_idle_time" json:"max_idle_time"`     // Maximum time a connection can be idle
	MaxLifetime    string `yaml:"max_lifetime" json:"max_lifetime"`       // Maximum lifetime of a connection
}

// Enabled reports whether an audit store should be opened.
func (c *DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

// SetDefaults sets sensible default values for the database configuration
func (c *DatabaseConfig) SetDefaults() {
	if !c.Enabled() {
		return
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
		log.Warnf("database.max_connections not set or invalid, defaulting to %d", c.MaxConnections)
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 2
		log.Warnf("database.min_connections not set or invalid, defaulting to %d", c.MinConnections)
	}
	if c.MaxIdleTime == "" {
		c.MaxIdleTime = "30m"
		log.Warnf("database.max_idle_time not set, defaulting to %s", c.MaxIdleTime)
	}
	if c.MaxLifetime == "" {
		c.MaxLifetime = "1h"
		log.Warnf("database.max_lifetime not set, defaulting to %s", c.MaxLifetime)
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("database max_connections must be positive")
	}
	if c.MinConnections < 0 {
		return fmt.Errorf("database min_connections cannot be negative")
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min_connections (%d) cannot be greater than max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	return nil
}

// LogConfiguration logs the database configuration (excluding sensitive DSN)
func (c *DatabaseConfig) LogConfiguration(logger log.FieldLogger) {
	if !c.Enabled() {
		logger.Info("Audit store disabled (database.dsn not set)")
		return
	}
	logger.WithFields(log.Fields{
		"max_connections": c.MaxConnections,
		"min_connections": c.MinConnections,
		"max_idle_time":   c.MaxIdleTime,
		"max_lifetime":    c.MaxLifetime,
		"dsn":             "[configured]",
	}).Info("Audit store configuration")
}
