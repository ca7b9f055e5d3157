package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// StrategyAddress is the hex address of the strategy this instance manages.
	StrategyAddress string

	// RegistryFile is the path to the registry file produced at environment setup.
	RegistryFile string
	// SnapshotFile is the path to the strategy state snapshot the engine plans against.
	SnapshotFile string

	// CycleCron is the cron expression driving the estimation cycle.
	CycleCron string

	// WebPort is the port the dashboard API listens on.
	WebPort int

	// DBHost, DBPort, DBUser, DBPassword, DBName, DBSSLMode configure PostgreSQL.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	StrategyAddress, err = getEnv("SVE_STRATEGY")
	if err != nil {
		return err
	}

	RegistryFile, err = getEnv("SVE_REGISTRY_FILE")
	if err != nil {
		return err
	}

	SnapshotFile, err = getEnv("SVE_SNAPSHOT_FILE")
	if err != nil {
		return err
	}

	CycleCron, err = getEnv("SVE_CYCLE_CRON")
	if err != nil {
		return err
	}

	WebPort, err = getEnvAsInt("WEB_PORT")
	if err != nil {
		return err
	}

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	DBPort, err = getEnvAsInt("DB_PORT")
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}

	log.Debug().
		Str("Strategy", StrategyAddress).
		Str("RegistryFile", RegistryFile).
		Str("CycleCron", CycleCron).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
