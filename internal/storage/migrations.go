package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					address TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					symbol TEXT NOT NULL,
					blocks_per_epoch INTEGER NOT NULL DEFAULT 0,
					blocks_per_subscription INTEGER NOT NULL DEFAULT 0,
					last_submitted_epoch INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME
				);
			`,
		},
		{
			Version:     "002",
			Description: "Index contracts by update time",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_contracts_updated_at ON contracts(updated_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					address VARCHAR(42) PRIMARY KEY,
					name TEXT NOT NULL,
					symbol TEXT NOT NULL,
					blocks_per_epoch BIGINT NOT NULL DEFAULT 0,
					blocks_per_subscription BIGINT NOT NULL DEFAULT 0,
					last_submitted_epoch BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ
				);
			`,
		},
		{
			Version:     "002",
			Description: "Index contracts by update time",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_contracts_updated_at ON contracts(updated_at);
			`,
		},
	}
}
