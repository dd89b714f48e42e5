package hedera

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Supported network names
const (
	NetworkMainnet    = "mainnet"
	NetworkTestnet    = "testnet"
	NetworkPreviewnet = "previewnet"
	NetworkLocal      = "local"
)

// Supported operator key encodings
const (
	KeyTypeECDSA   = "ecdsa"
	KeyTypeED25519 = "ed25519"
	KeyTypeDER     = "der"
)

// Environment variables honoured by ApplyEnv
const (
	EnvNetwork    = "HEDERA_NETWORK"
	EnvAccountID  = "MY_ACCOUNT_ID"
	EnvPrivateKey = "HEX_PRIVATE_KEY"
	EnvTopicID    = "HEDERA_TOPIC_ID"
	EnvKeyType    = "HEDERA_KEY_TYPE"
)

// HederaConfig stores Hedera-specific configuration
type HederaConfig struct {
	// --- SDK Connection Required ---
	Network string `yaml:"network"`

	// Only used when network is "local"
	NodeAddress   string `yaml:"node_address"`
	NodeAccountID string `yaml:"node_account_id"`
	MirrorAddress string `yaml:"mirror_address"`

	// Transaction Signing Credentials
	OperatorAccountID  string `yaml:"operator_account_id"`
	OperatorPrivateKey string `yaml:"operator_private_key"`
	KeyType            string `yaml:"key_type"`

	// --- Business Logic Required ---
	TopicID     string `yaml:"topic_id"`
	MaxChunks   uint64 `yaml:"max_chunks"`
	FetchRecord bool   `yaml:"fetch_record"` // costs a record query per submission
}

// LoadHederaConfig loads Hedera configuration from the specified YAML file path.
// A missing file is not an error; the values are then expected from ApplyEnv.
func LoadHederaConfig(path string) (*HederaConfig, error) {
	var cfg HederaConfig

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of Hedera config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		log.Infof("Loading Hedera configuration from '%s'...", absPath)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse Hedera YAML config file: %w", err)
		}
	case os.IsNotExist(err):
		log.Debugf("Hedera config '%s' not found, using environment only", absPath)
	default:
		return nil, fmt.Errorf("failed to read Hedera config file '%s': %w", absPath, err)
	}

	cfg.ApplyEnv()
	cfg.SetDefaults()
	return &cfg, nil
}

// ApplyEnv overrides file values with the process environment
func (c *HederaConfig) ApplyEnv() {
	if v := os.Getenv(EnvNetwork); v != "" {
		c.Network = v
	}
	if v := os.Getenv(EnvAccountID); v != "" {
		c.OperatorAccountID = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		c.OperatorPrivateKey = v
	}
	if v := os.Getenv(EnvTopicID); v != "" {
		c.TopicID = v
	}
	if v := os.Getenv(EnvKeyType); v != "" {
		c.KeyType = v
	}
}

// SetDefaults normalizes names and fills optional values
func (c *HederaConfig) SetDefaults() {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	if c.Network == "" {
		c.Network = NetworkTestnet
		log.Warnf("network not set, defaulting to %s", c.Network)
	}
	c.KeyType = strings.ToLower(strings.TrimSpace(c.KeyType))
	if c.KeyType == "" {
		c.KeyType = KeyTypeECDSA
	}
	if c.MaxChunks == 0 {
		c.MaxChunks = 20
	}
}

// Validate checks that everything needed to build a client is present
func (c *HederaConfig) Validate() error {
	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkPreviewnet:
	case NetworkLocal:
		if c.NodeAddress == "" || c.NodeAccountID == "" {
			return errors.New("local network requires node_address and node_account_id")
		}
	default:
		return fmt.Errorf("unsupported Hedera network: %q", c.Network)
	}
	switch c.KeyType {
	case KeyTypeECDSA, KeyTypeED25519, KeyTypeDER:
	default:
		return fmt.Errorf("unsupported key_type: %q", c.KeyType)
	}
	if c.OperatorAccountID == "" {
		return fmt.Errorf("operator account id is required (%s)", EnvAccountID)
	}
	if c.OperatorPrivateKey == "" {
		return fmt.Errorf("operator private key is required (%s)", EnvPrivateKey)
	}
	if c.TopicID == "" {
		return fmt.Errorf("topic id is required (%s)", EnvTopicID)
	}
	return nil
}
