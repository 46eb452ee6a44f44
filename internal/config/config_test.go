package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("SUBGRAPH_URL", "http://localhost:9000/subgraphs/name/oceanprotocol/ocean-subgraph")
	t.Setenv("OWNER_ADDRS", "0xaaa,0xbbb")
	t.Setenv("PAIR_FILTER", "ETH/USDT,BTC/USDT")
	t.Setenv("PRIVATE_KEY", "0x01")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:9000/subgraphs/name/oceanprotocol/ocean-subgraph", cfg.Subgraph.URL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Subgraph.RequestTimeout)
	assert.Equal(t, MaxPageSize, cfg.Subgraph.PageSize)
	assert.Equal(t, "0x01", cfg.Wallet.PrivateKey)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Subgraph.OwnerAddrs())
	assert.Equal(t, "@every 5m", cfg.Refresher.Schedule)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 3, cfg.Notify.RetryAttempts)

	spec := cfg.Subgraph.FilterSpec()
	assert.Equal(t, []string{utils.HexText("ETH/USDT"), utils.HexText("BTC/USDT")}, spec[models.FilterCategoryPair])
	assert.Empty(t, spec[models.FilterCategoryTimeframe])
	assert.Empty(t, spec[models.FilterCategorySource])
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
subgraph:
  url: http://subgraph.example
  page_size: 250
  default_owner_addrs:
    - "0xdefault"
storage:
  type: postgres
  connection_string: postgres://localhost/pdr
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 250, cfg.Subgraph.PageSize)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, []string{"0xdefault"}, cfg.Subgraph.OwnerAddrs())
}

func TestOwnerAddrsMergesExplicitly(t *testing.T) {
	s := SubgraphConfig{
		DefaultOwnerAddrs: []string{"0xa", "0xb"},
		OwnerAddrsList:    "0xb, 0xc,",
	}
	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, s.OwnerAddrs())

	empty := SubgraphConfig{}
	assert.Empty(t, empty.OwnerAddrs())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Subgraph: SubgraphConfig{URL: "http://x", PageSize: 1000, RequestTimeout: time.Second},
			Storage:  StorageConfig{Type: "sqlite"},
		}
	}

	require.NoError(t, valid().Validate())

	c := valid()
	c.Subgraph.URL = ""
	assert.True(t, utils.HasCode(c.Validate(), utils.ErrCodeConfiguration))

	c = valid()
	c.Subgraph.PageSize = 1001
	assert.Error(t, c.Validate())

	c = valid()
	c.Wallet.PrivateKey = "abcd"
	assert.Error(t, c.Validate())

	c = valid()
	c.Storage.Type = "mysql"
	assert.Error(t, c.Validate())

	c = valid()
	c.Notify.WebhookURL = "ftp://hooks"
	assert.Error(t, c.Validate())
	c.Notify.WebhookURL = "https://hooks.example/pdr"
	assert.NoError(t, c.Validate())

	c = valid()
	assert.Error(t, c.ValidateChain())
	c.RPC.NodeURL = "http://rpc"
	c.Wallet.PrivateKey = "0x01"
	assert.NoError(t, c.ValidateChain())
}
