// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *config.StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(cfg *config.StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     cfg,
		logger:     utils.NewSublogger("storage").WithField("driver", "sqlite"),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveContracts upserts contracts in a transaction. The last submitted epoch of
// an existing row is kept.
func (s *SQLiteStorage) SaveContracts(ctx context.Context, contracts []*models.NormalizedContract) error {
	if len(contracts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			blocks_per_epoch = excluded.blocks_per_epoch,
			blocks_per_subscription = excluded.blocks_per_subscription,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, contract := range contracts {
		_, err = stmt.ExecContext(ctx,
			strings.ToLower(contract.Address), contract.Name, contract.Symbol,
			contract.BlocksPerEpoch, contract.BlocksPerSubscription,
			contract.LastSubmittedEpoch, now)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save contract in batch", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}

	s.logger.WithField("count", len(contracts)).Debug("Saved contracts batch")
	return nil
}

// GetContract retrieves a contract by address; a missing contract returns nil
func (s *SQLiteStorage) GetContract(ctx context.Context, address string) (*models.NormalizedContract, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE address = ?", strings.ToLower(address))

	contract, err := scanContract(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get contract", err.Error())
	}
	return contract, nil
}

// GetContracts retrieves all contracts ordered by address
func (s *SQLiteStorage) GetContracts(ctx context.Context) ([]*models.NormalizedContract, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+contractColumns+" FROM contracts ORDER BY address ASC")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query contracts", err.Error())
	}
	defer rows.Close()

	var contracts []*models.NormalizedContract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan contract", err.Error())
		}
		contracts = append(contracts, contract)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate contracts", err.Error())
	}

	return contracts, nil
}

// UpdateLastSubmittedEpoch records the latest epoch a prediction was submitted for
func (s *SQLiteStorage) UpdateLastSubmittedEpoch(ctx context.Context, address string, epoch int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE contracts SET last_submitted_epoch = ?, updated_at = ? WHERE address = ?",
		epoch, time.Now().UTC(), strings.ToLower(address))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update contract", err.Error())
	}

	return requireAffected(result, address)
}

// DeleteContract deletes a contract by address
func (s *SQLiteStorage) DeleteContract(ctx context.Context, address string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM contracts WHERE address = ?", strings.ToLower(address))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete contract", err.Error())
	}

	return requireAffected(result, address)
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts").Scan(&stats.TotalContracts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get contract count", err.Error())
	}

	var lastUpdated sql.NullTime
	err = s.db.QueryRowContext(ctx, "SELECT updated_at FROM contracts ORDER BY updated_at DESC LIMIT 1").Scan(&lastUpdated)
	if err == nil && lastUpdated.Valid {
		stats.LastUpdated = &lastUpdated.Time
	}

	// Get database size (SQLite specific)
	err = s.db.QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&stats.DatabaseSize)
	if err != nil {
		stats.DatabaseSize = 0
	}

	return stats, nil
}

func requireAffected(result sql.Result, address string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to get affected rows", err.Error())
	}
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Contract not found", address)
	}
	return nil
}
