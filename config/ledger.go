package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LedgerConfig stores settings common to every ledger client implementation
type LedgerConfig struct {
	// --- Ledger Type Selection ---
	LedgerType string `yaml:"ledger_type"` // "hedera"

	// --- Common Behavior Configuration ---
	MaxAttempts    int           `yaml:"max_attempts"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MinBackoff     time.Duration `yaml:"min_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// --- Ledger-specific Configuration ---
	// Loaded separately based on ledger type
	ChainSpecific any `yaml:"-"`
}

// SetDefaults fills in the SDK retry policy when the file leaves it empty
func (c *LedgerConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
		log.Warnf("max_attempts not set or invalid, defaulting to %d", c.MaxAttempts)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
		log.Warnf("request_timeout not set, defaulting to %v", c.RequestTimeout)
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 8 * time.Second
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
}

// LoadLedgerConfig loads ledger configuration from the specified YAML file path.
// A missing file yields a default configuration so the relay can run from
// environment variables alone.
func LoadLedgerConfig(path string) (*LedgerConfig, error) {
	var cfg LedgerConfig
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
		}

		data, err := os.ReadFile(absPath)
		switch {
		case err == nil:
			log.Infof("Loading ledger configuration from '%s'...", absPath)
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
			}
		case os.IsNotExist(err):
			log.Warnf("Ledger config '%s' not found, using defaults", absPath)
		default:
			return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
		}
	}

	cfg.SetDefaults()
	return &cfg, nil
}
