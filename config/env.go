package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Environment variables read once at startup
const (
	EnvPort          = "PORT"
	EnvDatabaseDSN   = "RELAY_DATABASE_DSN"
	EnvKafkaBrokers  = "RELAY_KAFKA_BROKERS"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFile       = "LOG_FILE"
	EnvGrpcListen    = "GRPC_LISTEN_ADDR"
	EnvConfigDirPath = "RELAY_CONFIG_DIR"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set.
// Files that do not exist are skipped.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}
	log.Debugf("Loading environment from %v", existing)
	return godotenv.Load(existing...)
}

// ApplyRelayEnv overrides relay settings from the environment
func ApplyRelayEnv(cfg *RelayConfig) {
	if port := os.Getenv(EnvPort); port != "" {
		cfg.HttpListenAddr = ":" + strings.TrimPrefix(port, ":")
	}
	if addr := os.Getenv(EnvGrpcListen); addr != "" {
		cfg.GrpcListenAddr = addr
	}
	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if brokers := splitList(os.Getenv(EnvKafkaBrokers)); len(brokers) > 0 {
		cfg.KafkaEvents.Brokers = brokers
		cfg.KafkaRequests.Brokers = brokers
	}
	applyMonitoringEnv(&cfg.Monitoring)
}

// ApplyWorkerEnv overrides worker settings from the environment
func ApplyWorkerEnv(cfg *WorkerConfig) {
	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if brokers := splitList(os.Getenv(EnvKafkaBrokers)); len(brokers) > 0 {
		cfg.KafkaConsumer.Brokers = brokers
		cfg.KafkaEvents.Brokers = brokers
	}
	applyMonitoringEnv(&cfg.Monitoring)
}

func applyMonitoringEnv(m *MonitoringConfig) {
	if level := os.Getenv(EnvLogLevel); level != "" {
		m.LogLevel = level
	}
	if file := os.Getenv(EnvLogFile); file != "" {
		m.LogFile = file
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
