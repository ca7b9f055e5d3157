// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS trade_plans (
			plan_id UUID PRIMARY KEY,
			strategy VARCHAR(42) NOT NULL,
			cycle_number INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			total_value NUMERIC(78, 0) NOT NULL,
			valuations JSONB,
			steps JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_trade_plans_strategy_created ON trade_plans(strategy, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_trade_plans_cycle ON trade_plans(cycle_number DESC);

		CREATE TABLE IF NOT EXISTS rebalance_params (
			params_id SERIAL PRIMARY KEY,
			strategy VARCHAR(42) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			threshold BIGINT NOT NULL,
			slippage BIGINT NOT NULL,
			fee BIGINT NOT NULL,
			restructure_delay_seconds BIGINT NOT NULL,
			param_delay_seconds BIGINT NOT NULL,
			CONSTRAINT uq_rebalance_params_strategy_version UNIQUE (strategy, version)
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_params_strategy_active ON rebalance_params(strategy, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS timelock_changes (
			change_id SERIAL PRIMARY KEY,
			strategy VARCHAR(42) NOT NULL,
			kind VARCHAR(20) NOT NULL,
			proposed_at TIMESTAMPTZ NOT NULL,
			matures_at TIMESTAMPTZ NOT NULL,
			finalized_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ,
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_timelock_changes_strategy_kind ON timelock_changes(strategy, kind, proposed_at DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
