// File: internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/oceanprotocol/pdr-utils/internal/models"
)

// Storage defines the interface for the registry of discovered prediction contracts
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Contract operations
	SaveContracts(ctx context.Context, contracts []*models.NormalizedContract) error
	GetContract(ctx context.Context, address string) (*models.NormalizedContract, error)
	GetContracts(ctx context.Context) ([]*models.NormalizedContract, error)
	UpdateLastSubmittedEpoch(ctx context.Context, address string, epoch int64) error
	DeleteContract(ctx context.Context, address string) error

	// Statistics and monitoring
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalContracts int64      `json:"total_contracts"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
	DatabaseSize   int64      `json:"database_size_bytes"`
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const contractColumns = "address, name, symbol, blocks_per_epoch, blocks_per_subscription, last_submitted_epoch, updated_at"

func scanContract(row rowScanner) (*models.NormalizedContract, error) {
	var (
		contract  models.NormalizedContract
		updatedAt sql.NullTime
	)
	err := row.Scan(&contract.Address, &contract.Name, &contract.Symbol,
		&contract.BlocksPerEpoch, &contract.BlocksPerSubscription,
		&contract.LastSubmittedEpoch, &updatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		contract.UpdatedAt = &t
	}
	return &contract, nil
}
