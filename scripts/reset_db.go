package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/state"
)

// Drops every engine table and recreates the schema from scratch. Meant for
// development databases only.
func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	err := godotenv.Load()
	if err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPortStr := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSSLMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPortStr == "" {
		dbPortStr = "5432"
	}
	if dbSSLMode == "" {
		dbSSLMode = "disable"
	}

	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		log.Fatal().Err(err).Str("DB_PORT", dbPortStr).Msg("Invalid DB_PORT")
	}

	cfg := state.DBConfig{
		Host: dbHost, Port: dbPort,
		User: dbUser, Password: dbPassword,
		DBName: dbName, SSLMode: dbSSLMode,
	}
	if err := state.InitDB(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer state.CloseDB()

	dropSQL := `
		DROP TABLE IF EXISTS trade_plans CASCADE;
		DROP TABLE IF EXISTS rebalance_params CASCADE;
		DROP TABLE IF EXISTS timelock_changes CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := state.DB.Exec(dropSQL); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Dropped all engine tables")

	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate schema")
	}

	fmt.Println("Database reset complete.")
}
