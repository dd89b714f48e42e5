package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// DefaultMaxBodyBytes caps request bodies at 10 MiB.
const DefaultMaxBodyBytes = 10 << 20

// KafkaProducerConfig defines configuration for a Kafka producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// Enabled reports whether the producer has somewhere to write.
func (c *KafkaProducerConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// BatchProcessorConfig defines how successful submissions are batched
// into the audit store and the event stream
type BatchProcessorConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	FlushChannelBuffer int           `yaml:"flush_channel_buffer"` // Buffer size for flush channel
}

// SetDefaults sets reasonable default values for batch processor configuration
func (c *BatchProcessorConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 50
		log.Warnf("audit_batch.batch_size not set, defaulting to %d", c.BatchSize)
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 500 * time.Millisecond
		log.Warnf("audit_batch.batch_timeout not set, defaulting to %v", c.BatchTimeout)
	}
	if c.FlushChannelBuffer == 0 {
		c.FlushChannelBuffer = 16
	}
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// SetDefaults sets reasonable defaults for the HTTP server
func (c *HttpServerConfig) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Writes include the wait for ledger consensus
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// MonitoringConfig defines monitoring configuration shared by both binaries
type MonitoringConfig struct {
	EnableMetrics   bool   `yaml:"enable_metrics"`
	MetricsPath     string `yaml:"metrics_path"`
	HealthCheckPath string `yaml:"health_check_path"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
}

// SetDefaults sets reasonable default values for monitoring configuration
func (c *MonitoringConfig) SetDefaults() {
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// RelayConfig defines all configuration required by the relay service
type RelayConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"`

	// Upper bound on a single submission, including receipt retrieval
	SubmitTimeout time.Duration `yaml:"submit_timeout"`

	Database      DatabaseConfig       `yaml:"database"`
	AuditBatch    BatchProcessorConfig `yaml:"audit_batch"`
	KafkaEvents   KafkaProducerConfig  `yaml:"kafka_events"`   // AnchorEvent stream
	KafkaRequests KafkaProducerConfig  `yaml:"kafka_requests"` // enqueue endpoint target
	HttpServer    HttpServerConfig     `yaml:"http_server"`
	Monitoring    MonitoringConfig     `yaml:"monitoring"`

	LedgerClientConfigPath string `yaml:"ledger_client_config_path"`
}

// SetDefaults applies defaults to every section
func (c *RelayConfig) SetDefaults() {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
		log.Warnf("submit_timeout not set, defaulting to %v", c.SubmitTimeout)
	}
	c.Database.SetDefaults()
	c.AuditBatch.SetDefaults()
	c.HttpServer.SetDefaults()
	c.Monitoring.SetDefaults()
}

// Validate checks the settings that cannot be defaulted
func (c *RelayConfig) Validate() error {
	if c.HttpListenAddr == "" {
		return errors.New("configuration error: http_listen_addr (or PORT) must be configured")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database configuration error: %w", err)
	}
	return nil
}

// LoadRelayConfig loads relay configuration from the specified YAML file path,
// applies environment overrides and validates the result.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := readOptionalYAML(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load relay config: %w", err)
	}

	ApplyRelayEnv(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readOptionalYAML decodes path into out. A missing file is not an error.
func readOptionalYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Config file '%s' not found, relying on environment", path)
			return nil
		}
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config file '%s': %w", path, err)
	}
	return nil
}
