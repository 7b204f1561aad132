package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv(ProjectIDEnv, "")
	path := writeConfig(t, `
project_id: abc123
log_level: 3
kafka-server: kafka-1:9092,kafka-2:9092
redis:
  address: 127.0.0.1
  port: "6379"
aws:
  region: ap-southeast-1
  project_id_parameter: /moff/wallet/project_id
http:
  address: ":9090"
  request_timeout: 5s
wallet_connect:
  relay_url: wss://relay.example.org
  user_agent: wc-2/go-2.0.0/moff-wallet-staging
  request_timeout: 10s
  session_store: redis
wallet:
  chain_id: 137
  pending_policy: reject
  signing_mode: deferred
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc123", c.ProjectID)
	assert.Equal(t, 3, c.LogLevel)
	assert.Equal(t, "kafka-1:9092,kafka-2:9092", c.KafkaServer)
	assert.Equal(t, "127.0.0.1:6379", c.RedisCredential.GetRedisAddress())
	assert.Equal(t, "/moff/wallet/project_id", c.Aws.ProjectIDParameter)
	assert.Equal(t, ":9090", c.HTTP.Address)
	assert.Equal(t, 5*time.Second, c.HTTP.RequestTimeout)
	assert.Equal(t, "wss://relay.example.org", c.WalletConnect.RelayURL)
	assert.Equal(t, "wc-2/go-2.0.0/moff-wallet-staging", c.WalletConnect.UserAgent)
	assert.Equal(t, 10*time.Second, c.WalletConnect.RequestTimeout)
	assert.Equal(t, "redis", c.WalletConnect.SessionStore)
	assert.Equal(t, "Moff Wallet", c.WalletConnect.Metadata.Name)
	assert.Equal(t, 137, c.Wallet.ChainID)
	assert.Equal(t, "reject", c.Wallet.PendingPolicy)
	assert.Equal(t, "deferred", c.Wallet.SigningMode)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ProjectIDEnv, "")
	c, err := Load(writeConfig(t, "project_id: abc\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTP.Address)
	assert.Equal(t, 60*time.Second, c.HTTP.RequestTimeout)
	assert.Equal(t, "memory", c.WalletConnect.SessionStore)
	assert.Equal(t, 1, c.Wallet.ChainID)
}

func TestLoadProjectIDFromEnv(t *testing.T) {
	t.Setenv(ProjectIDEnv, " from-env ")
	c, err := Load(writeConfig(t, "project_id: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.ProjectID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "does not exist")

	_, err = Load(writeConfig(t, "project_id: [unterminated"))
	assert.ErrorContains(t, err, "decode config")
}
