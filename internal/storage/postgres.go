package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *config.StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(cfg *config.StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     cfg,
		logger:     utils.NewSublogger("storage").WithField("driver", "postgres"),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting PostgreSQL database migrations")

	for _, migration := range p.migrations {
		p.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	p.logger.Info("PostgreSQL database migrations completed")
	return nil
}

// SaveContracts upserts contracts in a transaction. The last submitted epoch of
// an existing row is kept.
func (p *PostgreSQLStorage) SaveContracts(ctx context.Context, contracts []*models.NormalizedContract) error {
	if len(contracts) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			blocks_per_epoch = EXCLUDED.blocks_per_epoch,
			blocks_per_subscription = EXCLUDED.blocks_per_subscription,
			updated_at = EXCLUDED.updated_at
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
			return p.wrapError("Failed to save contract in batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}

	p.logger.WithField("count", len(contracts)).Debug("Saved contracts batch")
	return nil
}

// GetContract retrieves a contract by address; a missing contract returns nil
func (p *PostgreSQLStorage) GetContract(ctx context.Context, address string) (*models.NormalizedContract, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE address = $1", strings.ToLower(address))

	contract, err := scanContract(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, p.wrapError("Failed to get contract", err)
	}
	return contract, nil
}

// GetContracts retrieves all contracts ordered by address
func (p *PostgreSQLStorage) GetContracts(ctx context.Context) ([]*models.NormalizedContract, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT "+contractColumns+" FROM contracts ORDER BY address ASC")
	if err != nil {
		return nil, p.wrapError("Failed to query contracts", err)
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
		return nil, p.wrapError("Failed to iterate contracts", err)
	}

	return contracts, nil
}

// UpdateLastSubmittedEpoch records the latest epoch a prediction was submitted for
func (p *PostgreSQLStorage) UpdateLastSubmittedEpoch(ctx context.Context, address string, epoch int64) error {
	result, err := p.db.ExecContext(ctx,
		"UPDATE contracts SET last_submitted_epoch = $1, updated_at = $2 WHERE address = $3",
		epoch, time.Now().UTC(), strings.ToLower(address))
	if err != nil {
		return p.wrapError("Failed to update contract", err)
	}

	return requireAffected(result, address)
}

// DeleteContract deletes a contract by address
func (p *PostgreSQLStorage) DeleteContract(ctx context.Context, address string) error {
	result, err := p.db.ExecContext(ctx, "DELETE FROM contracts WHERE address = $1", strings.ToLower(address))
	if err != nil {
		return p.wrapError("Failed to delete contract", err)
	}

	return requireAffected(result, address)
}

// GetStorageStats returns storage statistics
func (p *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts").Scan(&stats.TotalContracts)
	if err != nil {
		return nil, p.wrapError("Failed to get contract count", err)
	}

	var lastUpdated sql.NullTime
	err = p.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM contracts").Scan(&lastUpdated)
	if err == nil && lastUpdated.Valid {
		stats.LastUpdated = &lastUpdated.Time
	}

	err = p.db.QueryRowContext(ctx, "SELECT pg_total_relation_size('contracts')").Scan(&stats.DatabaseSize)
	if err != nil {
		stats.DatabaseSize = 0
	}

	return stats, nil
}

// wrapError keeps the SQLSTATE of server-side errors in the details
func (p *PostgreSQLStorage) wrapError(message string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		return utils.NewAppError(utils.ErrCodeDatabase, message,
			fmt.Sprintf("%s (SQLSTATE %s)", pqErr.Message, pqErr.Code))
	}
	return utils.NewAppError(utils.ErrCodeDatabase, message, err.Error())
}
