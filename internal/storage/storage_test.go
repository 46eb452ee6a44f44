package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

func newTestSQLite(t *testing.T) Storage {
	t.Helper()
	store, err := NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "data", "contracts.db"),
		MaxConnections:   1,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func contract(address, name string, epoch int64) *models.NormalizedContract {
	return &models.NormalizedContract{
		Name:                  name,
		Address:               address,
		Symbol:                name,
		BlocksPerEpoch:        60,
		BlocksPerSubscription: 86400,
		LastSubmittedEpoch:    epoch,
	}
}

func TestValidateStorageConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
		ok   bool
	}{
		{"sqlite", config.StorageConfig{Type: "sqlite", ConnectionString: "x.db", MaxConnections: 1}, true},
		{"postgres", config.StorageConfig{Type: "PostgreSQL", ConnectionString: "postgres://", MaxConnections: 5}, true},
		{"missing type", config.StorageConfig{ConnectionString: "x.db", MaxConnections: 1}, false},
		{"missing connection", config.StorageConfig{Type: "sqlite", MaxConnections: 1}, false},
		{"no connections", config.StorageConfig{Type: "sqlite", ConnectionString: "x.db"}, false},
		{"unknown type", config.StorageConfig{Type: "mysql", ConnectionString: "x", MaxConnections: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStorageConfig(&tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))
			}
		})
	}
}

func TestNewStorageType(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{Type: "postgres", ConnectionString: "postgres://localhost/pdr", MaxConnections: 2})
	require.NoError(t, err)
	assert.IsType(t, &PostgreSQLStorage{}, s)

	s, err = NewStorage(&config.StorageConfig{Type: "sqlite", ConnectionString: "x.db", MaxConnections: 2})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, s)
}

func TestSQLiteSaveAndGet(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.SaveContracts(ctx, []*models.NormalizedContract{
		contract("0xBB", "BTC/USDT", 0),
		contract("0xaa", "ETH/USDT", 0),
	}))

	got, err := store.GetContract(ctx, "0xaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ETH/USDT", got.Name)
	assert.Equal(t, int64(60), got.BlocksPerEpoch)
	assert.NotNil(t, got.UpdatedAt)

	got, err = store.GetContract(ctx, "0xBB")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0xbb", got.Address)

	missing, err := store.GetContract(ctx, "0xcc")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := store.GetContracts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0xaa", all[0].Address)
	assert.Equal(t, "0xbb", all[1].Address)

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalContracts)
}

func TestSQLiteUpsertKeepsLastSubmittedEpoch(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.SaveContracts(ctx, []*models.NormalizedContract{contract("0xaa", "ETH/USDT", 0)}))
	require.NoError(t, store.UpdateLastSubmittedEpoch(ctx, "0xAA", 42))

	renamed := contract("0xaa", "ETH/USDT v2", 0)
	renamed.BlocksPerEpoch = 300
	require.NoError(t, store.SaveContracts(ctx, []*models.NormalizedContract{renamed}))

	got, err := store.GetContract(ctx, "0xaa")
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDT v2", got.Name)
	assert.Equal(t, int64(300), got.BlocksPerEpoch)
	assert.Equal(t, int64(42), got.LastSubmittedEpoch)
}

func TestSQLiteMissingRows(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	err := store.UpdateLastSubmittedEpoch(ctx, "0xdead", 1)
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))

	err = store.DeleteContract(ctx, "0xdead")
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))

	require.NoError(t, store.SaveContracts(ctx, []*models.NormalizedContract{contract("0xaa", "ETH/USDT", 0)}))
	require.NoError(t, store.DeleteContract(ctx, "0xaa"))

	all, err := store.GetContracts(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.NoError(t, store.SaveContracts(ctx, nil))
}

func TestSQLiteNotConnected(t *testing.T) {
	store := NewSQLiteStorage(&config.StorageConfig{Type: "sqlite", ConnectionString: "unused.db"})

	assert.True(t, utils.HasCode(store.Ping(), utils.ErrCodeDatabase))
	assert.True(t, utils.HasCode(store.Migrate(), utils.ErrCodeDatabase))
	assert.NoError(t, store.Close())
}

func TestStorageWithMetrics(t *testing.T) {
	manager := metrics.NewManager()
	store := NewStorageWithMetrics(newTestSQLite(t), manager)
	ctx := context.Background()

	require.NoError(t, store.SaveContracts(ctx, []*models.NormalizedContract{contract("0xaa", "ETH/USDT", 0)}))
	_, err := store.GetContracts(ctx)
	require.NoError(t, err)
	assert.Error(t, store.UpdateLastSubmittedEpoch(ctx, "0xdead", 1))

	pm := manager.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.DatabaseOperationsTotal.WithLabelValues("upsert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.DatabaseOperationsTotal.WithLabelValues("select", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.DatabaseOperationsTotal.WithLabelValues("update", "error")))
}
