package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/meridianfi/sve/internal/config"
	"github.com/meridianfi/sve/internal/estimator"
	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/rebalance"
	"github.com/meridianfi/sve/internal/registry"
	"github.com/meridianfi/sve/internal/runner"
	"github.com/meridianfi/sve/internal/state"
	"github.com/meridianfi/sve/internal/strategy"
	"github.com/meridianfi/sve/internal/timelock"
	"github.com/meridianfi/sve/internal/web"
)

// main is the entry point for the strategy valuation engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		if err := logger.AddFileOutput(logFile); err != nil {
			log.Fatal().Err(err).Str("path", logFile).Msg("Failed to open log file")
		}
	}
	log.Info().Msg("Strategy Valuation Engine starting...")

	// Initialize database connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Environment Setup ---
	env, err := registry.Load(config.RegistryFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.RegistryFile).Msg("Failed to load registry file")
	}
	log.Info().
		Str("reserve", env.Reserve.Hex()).
		Int("adapters", env.Adapters.Len()).
		Int("tokens", env.Tokens.Len()).
		Msg("Environment registry loaded")

	strategyAddr := common.HexToAddress(config.StrategyAddress)

	// Prefer the persisted active params version over the registry file.
	params := env.Params
	if active, ok, err := state.GetActiveParams(strategyAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to load active params")
	} else if ok {
		params = active
		log.Info().Msg("Loaded active rebalance params from database")
	} else if err := state.SaveActiveParams(strategyAddr, params); err != nil {
		log.Warn().Err(err).Msg("Failed to persist initial params version")
	}

	paths := estimator.NewPathEstimator(env.Adapters, env.Reserve)
	valuer := estimator.NewValuer(paths)
	engine, err := rebalance.NewEngine(valuer, params)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rebalance engine")
	}

	locks := timelock.New(params.RestructureDelay, params.ParamDelay)
	source := strategy.NewFileSource(config.SnapshotFile)

	cycleRunner, err := runner.New(runner.Config{
		Strategy: strategyAddr,
		Source:   source,
		Engine:   engine,
		Timelock: locks,
		Persist:  true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create cycle runner")
	}
	if err := cycleRunner.RestoreTimelocks(); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore pending timelock changes")
	}

	// --- 3. Start Web Server ---
	webServer := web.NewWebServer(strconv.Itoa(config.WebPort), strategyAddr, engine, locks)
	go func() {
		log.Info().Int("port", config.WebPort).Msg("Starting web dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Run Cycle Loop ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First cycle runs immediately; the schedule takes over afterwards.
	if _, err := cycleRunner.RunCycle(ctx); err != nil {
		log.Error().Err(err).Msg("Initial cycle failed")
	}

	scheduler, err := cycleRunner.Schedule(ctx, config.CycleCron)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start cycle schedule")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down...")

	stopCtx := scheduler.Stop()
	cancel()
	<-stopCtx.Done()
	log.Info().Msg("Shutdown complete")
}
