package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// MockBrokerAddr selects the in-process mock consumer instead of Kafka.
const MockBrokerAddr = "mock://local"

// KafkaConsumerConfig defines configuration for Kafka consumer
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers"`            // e.g., ["kafka1:9092", "kafka2:9092"]
	Topic             string   `yaml:"topic"`              // Topic to consume from
	GroupID           string   `yaml:"group_id"`           // Consumer group ID
	Count             int      `yaml:"count"`              // Number of consumers to create
	SessionTimeout    string   `yaml:"session_timeout"`    // Kafka session timeout
	HeartbeatInterval string   `yaml:"heartbeat_interval"` // Kafka heartbeat interval
	AutoOffsetReset   string   `yaml:"auto_offset_reset"`  // earliest/latest
}

// UseMock reports whether the mock consumer should be used.
func (c *KafkaConsumerConfig) UseMock() bool {
	return len(c.Brokers) == 0 || c.Brokers[0] == MockBrokerAddr
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if c.Count <= 0 {
		c.Count = 1
		log.Warnf("kafka_consumer.count not set or invalid, defaulting to %d", c.Count)
	}
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "earliest"
		log.Warnf("kafka_consumer.auto_offset_reset not set, defaulting to %s", c.AutoOffsetReset)
	}
}

// BatchConfig defines how the anchor worker groups and submits requests
type BatchConfig struct {
	Concurrency        int    `yaml:"concurrency"`          // Parallel ledger submissions per batch
	BatchSize          int    `yaml:"batch_size"`           // Number of requests per batch
	BatchTimeout       string `yaml:"batch_timeout"`        // Maximum wait time for batch
	ConsumerRetryDelay string `yaml:"consumer_retry_delay"` // Delay when consumer encounters errors
}

// SetDefaults sets reasonable default values for worker configuration
func (c *BatchConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
		log.Warnf("worker.concurrency not set or invalid, defaulting to %d", c.Concurrency)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
		log.Warnf("worker.batch_size not set or invalid, defaulting to %d", c.BatchSize)
	}
	if c.BatchTimeout == "" {
		c.BatchTimeout = "1s"
	}
	if c.ConsumerRetryDelay == "" {
		c.ConsumerRetryDelay = "5s"
	}
}

// WorkerConfig defines all configuration for the anchor worker
type WorkerConfig struct {
	KafkaConsumer KafkaConsumerConfig  `yaml:"kafka_consumer"`
	KafkaEvents   KafkaProducerConfig  `yaml:"kafka_events"`
	Worker        BatchConfig          `yaml:"worker"`
	Database      DatabaseConfig       `yaml:"database"`
	AuditBatch    BatchProcessorConfig `yaml:"audit_batch"`
	Monitoring    MonitoringConfig     `yaml:"monitoring"`

	SubmitTimeout string `yaml:"submit_timeout"`

	LedgerClientConfigPath string `yaml:"ledger_client_config_path"`
}

// LoadWorkerConfig loads configuration from the specified YAML file path
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := readOptionalYAML(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	ApplyWorkerEnv(&cfg)

	cfg.KafkaConsumer.SetDefaults()
	cfg.Worker.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.AuditBatch.SetDefaults()
	cfg.Monitoring.SetDefaults()
	if cfg.SubmitTimeout == "" {
		cfg.SubmitTimeout = "30s"
	}

	if !cfg.KafkaConsumer.UseMock() && (cfg.KafkaConsumer.Topic == "" || cfg.KafkaConsumer.GroupID == "") {
		return nil, fmt.Errorf("configuration error: kafka_consumer.topic and kafka_consumer.group_id are required")
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}

	return &cfg, nil
}
