package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

func TestConnectionManagerUnreachable(t *testing.T) {
	cfg := &config.RPCConfig{
		NodeURL:        "http://127.0.0.1:1",
		BackupNodes:    []string{"http://127.0.0.1:2"},
		RequestTimeout: 200 * time.Millisecond,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
	}
	cm := NewConnectionManager(cfg)
	defer cm.Close()

	_, err := cm.GetClient(context.Background())
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeConnection))
	assert.False(t, cm.IsConnected())
	assert.Equal(t, uint64(4), cm.Stats().FailedRequests)
}

func TestConnectionManagerConfiguredChainID(t *testing.T) {
	cm := NewConnectionManager(&config.RPCConfig{NodeURL: "http://127.0.0.1:1", ChainID: 23295})
	require.NotNil(t, cm.chainID)
	assert.Equal(t, int64(23295), cm.chainID.Int64())
	assert.Equal(t, "http://127.0.0.1:1", cm.Stats().CurrentURL)
}
