package config

import (
	"fmt"
	"path/filepath"
)

// Default file names inside the config directory
const (
	RelayConfigFile  = "relay.defaults.yml"
	WorkerConfigFile = "worker.defaults.yml"
	LedgerConfigFile = "client_config.yml"
)

// Config represents the complete application configuration
type Config struct {
	Relay  *RelayConfig
	Worker *WorkerConfig
	Ledger *LedgerConfig
}

// LoadConfig loads the relay and ledger configuration from a directory.
// The worker section is loaded only by the worker binary.
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	relayCfg, err := LoadRelayConfig(filepath.Join(absDir, RelayConfigFile))
	if err != nil {
		return nil, err
	}

	ledgerPath := relayCfg.LedgerClientConfigPath
	if ledgerPath == "" {
		ledgerPath = filepath.Join(absDir, LedgerConfigFile)
	}
	relayCfg.LedgerClientConfigPath = ledgerPath

	ledgerCfg, err := LoadLedgerConfig(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger config: %w", err)
	}

	return &Config{Relay: relayCfg, Ledger: ledgerCfg}, nil
}

// LoadWorkerSetup loads the worker and ledger configuration from a directory.
func LoadWorkerSetup(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	workerCfg, err := LoadWorkerConfig(filepath.Join(absDir, WorkerConfigFile))
	if err != nil {
		return nil, err
	}

	ledgerPath := workerCfg.LedgerClientConfigPath
	if ledgerPath == "" {
		ledgerPath = filepath.Join(absDir, LedgerConfigFile)
	}
	workerCfg.LedgerClientConfigPath = ledgerPath

	ledgerCfg, err := LoadLedgerConfig(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger config: %w", err)
	}

	return &Config{Worker: workerCfg, Ledger: ledgerCfg}, nil
}
