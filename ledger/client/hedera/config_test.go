package hedera

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearHederaEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvNetwork, EnvAccountID, EnvPrivateKey, EnvTopicID, EnvKeyType} {
		t.Setenv(key, "")
	}
}

func validConfig() *HederaConfig {
	cfg := &HederaConfig{
		OperatorAccountID:  "0.0.1234",
		OperatorPrivateKey: "302e020100300506032b657004220420deadbeef",
		TopicID:            "0.0.5678",
	}
	cfg.SetDefaults()
	return cfg
}

func TestHederaConfig_SetDefaults(t *testing.T) {
	cfg := &HederaConfig{Network: " MainNet ", KeyType: "ED25519"}
	cfg.SetDefaults()

	assert.Equal(t, NetworkMainnet, cfg.Network)
	assert.Equal(t, KeyTypeED25519, cfg.KeyType)
	assert.Equal(t, uint64(20), cfg.MaxChunks)

	empty := &HederaConfig{}
	empty.SetDefaults()
	assert.Equal(t, NetworkTestnet, empty.Network)
	assert.Equal(t, KeyTypeECDSA, empty.KeyType)
}

func TestHederaConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := map[string]func(c *HederaConfig){
		"unknown network":    func(c *HederaConfig) { c.Network = "devnet" },
		"unknown key type":   func(c *HederaConfig) { c.KeyType = "rsa" },
		"missing account":    func(c *HederaConfig) { c.OperatorAccountID = "" },
		"missing key":        func(c *HederaConfig) { c.OperatorPrivateKey = "" },
		"missing topic":      func(c *HederaConfig) { c.TopicID = "" },
		"local without node": func(c *HederaConfig) { c.Network = NetworkLocal },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	local := validConfig()
	local.Network = NetworkLocal
	local.NodeAddress = "127.0.0.1:50211"
	local.NodeAccountID = "0.0.3"
	assert.NoError(t, local.Validate())
}

func TestLoadHederaConfig_EnvOverridesFile(t *testing.T) {
	clearHederaEnv(t)
	t.Setenv(EnvTopicID, "0.0.9999")
	t.Setenv(EnvAccountID, "0.0.4321")

	path := filepath.Join(t.TempDir(), "hedera.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
network: previewnet
operator_account_id: "0.0.1"
operator_private_key: "abc"
topic_id: "0.0.2"
max_chunks: 5
fetch_record: true
`), 0o644))

	cfg, err := LoadHederaConfig(path)
	require.NoError(t, err)

	assert.Equal(t, NetworkPreviewnet, cfg.Network)
	assert.Equal(t, "0.0.4321", cfg.OperatorAccountID)
	assert.Equal(t, "abc", cfg.OperatorPrivateKey)
	assert.Equal(t, "0.0.9999", cfg.TopicID)
	assert.Equal(t, uint64(5), cfg.MaxChunks)
	assert.True(t, cfg.FetchRecord)
}

func TestLoadHederaConfig_MissingFileUsesEnv(t *testing.T) {
	clearHederaEnv(t)
	t.Setenv(EnvNetwork, "TESTNET")
	t.Setenv(EnvAccountID, "0.0.1234")
	t.Setenv(EnvPrivateKey, "key")
	t.Setenv(EnvTopicID, "0.0.5678")

	cfg, err := LoadHederaConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, NetworkTestnet, cfg.Network)
	assert.NoError(t, cfg.Validate())
}
