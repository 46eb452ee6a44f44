package storage

import (
	"context"
	"time"

	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

// SaveContracts saves contracts and records metrics
func (s *StorageWithMetrics) SaveContracts(ctx context.Context, contracts []*models.NormalizedContract) error {
	start := time.Now()
	err := s.Storage.SaveContracts(ctx, contracts)
	s.record("upsert", err, start)
	return err
}

// GetContracts lists contracts and records metrics
func (s *StorageWithMetrics) GetContracts(ctx context.Context) ([]*models.NormalizedContract, error) {
	start := time.Now()
	contracts, err := s.Storage.GetContracts(ctx)
	s.record("select", err, start)
	return contracts, err
}

// GetContract loads a contract and records metrics
func (s *StorageWithMetrics) GetContract(ctx context.Context, address string) (*models.NormalizedContract, error) {
	start := time.Now()
	contract, err := s.Storage.GetContract(ctx, address)
	s.record("select", err, start)
	return contract, err
}

// UpdateLastSubmittedEpoch updates a contract and records metrics
func (s *StorageWithMetrics) UpdateLastSubmittedEpoch(ctx context.Context, address string, epoch int64) error {
	start := time.Now()
	err := s.Storage.UpdateLastSubmittedEpoch(ctx, address, epoch)
	s.record("update", err, start)
	return err
}

func (s *StorageWithMetrics) record(operation string, err error, start time.Time) {
	if s.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, status, time.Since(start))
}
