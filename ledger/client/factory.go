package ledger

import (
	"fmt"
	"path/filepath"

	"hcsrelay/config"
	"hcsrelay/ledger/client/hedera"

	log "github.com/sirupsen/logrus"
)

// LedgerType represents the type of ledger client
type LedgerType string

const (
	Hedera LedgerType = "hedera"
)

// LoadChainSpecificConfig loads ledger-specific configuration based on ledger type
func LoadChainSpecificConfig(ledgerType string, configDir string) (any, error) {
	switch LedgerType(ledgerType) {
	case Hedera, "":
		return hedera.LoadHederaConfig(filepath.Join(configDir, "clients", "hedera.yml"))
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", ledgerType)
	}
}

// NewLedgerClient creates a ledger client based on the configuration
func NewLedgerClient(cfg *config.LedgerConfig, logger log.FieldLogger) (LedgerClient, error) {
	switch LedgerType(cfg.LedgerType) {
	case Hedera, "":
		return hedera.NewHederaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.LedgerType)
	}
}

// NewLedgerClientFromConfig loads the ledger-specific section next to the
// common configuration file and builds the client
func NewLedgerClientFromConfig(cfg *config.LedgerConfig, configPath string, logger log.FieldLogger) (LedgerClient, error) {
	chainSpecificCfg, err := LoadChainSpecificConfig(cfg.LedgerType, filepath.Dir(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger-specific config: %w", err)
	}

	cfg.ChainSpecific = chainSpecificCfg
	return NewLedgerClient(cfg, logger)
}

// NewLedgerClientFromFile creates a ledger client from configuration files
func NewLedgerClientFromFile(configPath string, logger log.FieldLogger) (LedgerClient, error) {
	cfg, err := config.LoadLedgerConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load common config from file '%s': %w", configPath, err)
	}
	return NewLedgerClientFromConfig(cfg, configPath, logger)
}
