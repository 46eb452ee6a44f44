package connection

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// Manager defines the connection manager interface
type Manager interface {
	GetClient(ctx context.Context) (*ethclient.Client, error)
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HealthCheck(ctx context.Context) error
	IsConnected() bool
	Close() error
	Stats() ConnectionStats
}

// ConnectionManager dials the configured JSON-RPC node, falling back to backup nodes
type ConnectionManager struct {
	config         *config.RPCConfig
	urls           []string
	client         *ethclient.Client
	chainID        *big.Int
	mu             sync.RWMutex
	logger         *logrus.Entry
	stats          ConnectionStats
	metricsManager *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.RPCConfig) *ConnectionManager {
	urls := []string{cfg.NodeURL}
	urls = append(urls, cfg.BackupNodes...)

	cm := &ConnectionManager{
		config: cfg,
		urls:   urls,
		logger: utils.NewSublogger("connection"),
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
	if cfg.ChainID > 0 {
		cm.chainID = big.NewInt(cfg.ChainID)
	}
	return cm
}

// WithMetrics enables connection metrics
func (cm *ConnectionManager) WithMetrics(m *metrics.Manager) *ConnectionManager {
	cm.metricsManager = m
	return cm
}

// GetClient returns the current client, connecting first if needed
func (cm *ConnectionManager) GetClient(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()

	if client == nil {
		return cm.connect(ctx)
	}

	cm.mu.Lock()
	cm.stats.TotalRequests++
	cm.mu.Unlock()
	return client, nil
}

// connect tries every node in turn, retrying the whole round with a constant backoff
func (cm *ConnectionManager) connect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, nil
	}

	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cm.config.RetryDelay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		for _, url := range cm.urls {
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt}).Info("Attempting connection")

			client, err := cm.dial(ctx, url)
			if err != nil {
				cm.logger.WithError(err).WithField("url", url).Warn("Connection failed")
				cm.stats.FailedRequests++
				cm.recordError(url, "dial_failed")
				continue
			}

			cm.client = client
			cm.stats.CurrentURL = url
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.IsHealthy = true
			cm.logger.WithField("url", url).Info("Successfully connected to RPC node")
			return nil
		}
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any RPC node")
	}, policy)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any RPC node",
			"All connection attempts exhausted")
	}

	return cm.client, nil
}

// dial connects and checks that the node answers
func (cm *ConnectionManager) dial(ctx context.Context, url string) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, err
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if cm.chainID != nil && cm.chainID.Cmp(chainID) != 0 {
		client.Close()
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Chain ID mismatch",
			"expected "+cm.chainID.String()+", got "+chainID.String())
	}
	cm.chainID = chainID
	cm.stats.ChainID = chainID.Uint64()
	return client, nil
}

// ChainID returns the chain ID of the connected node
func (cm *ConnectionManager) ChainID(ctx context.Context) (*big.Int, error) {
	if _, err := cm.GetClient(ctx); err != nil {
		return nil, err
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return new(big.Int).Set(cm.chainID), nil
}

// LatestBlockNumber returns the latest block number
func (cm *ConnectionManager) LatestBlockNumber(ctx context.Context) (uint64, error) {
	client, err := cm.GetClient(ctx)
	if err != nil {
		return 0, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		cm.recordError(cm.Stats().CurrentURL, "block_number_failed")
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get latest block", err.Error())
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = blockNumber
	cm.mu.Unlock()

	return blockNumber, nil
}

// HealthCheck checks the node is reachable and still serves blocks
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	blockNumber, err := cm.LatestBlockNumber(ctx)

	cm.mu.Lock()
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.IsHealthy = err == nil
	cm.mu.Unlock()

	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("rpc", err == nil)
	}
	if err != nil {
		return err
	}

	cm.logger.WithField("latest_block", blockNumber).Debug("Health check passed")
	return nil
}

// IsConnected returns whether the manager is connected
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.stats.IsHealthy
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}

	cm.stats.IsHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

func (cm *ConnectionManager) recordError(endpoint, errorType string) {
	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().RecordConnectionError(endpoint, errorType)
	}
}
