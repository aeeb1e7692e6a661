package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fruteroclub/pulpa-distributor/internal/api"
	"github.com/fruteroclub/pulpa-distributor/internal/config"
	"github.com/fruteroclub/pulpa-distributor/internal/database"
	"github.com/fruteroclub/pulpa-distributor/internal/services"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("PULPA Distributor\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Commit: %s\n", CommitHash)
		fmt.Printf("Built: %s\n", BuildTime)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	tokenService, err := services.NewTokenService(cfg.Chain, logger)
	if err != nil {
		logger.Fatal("Failed to initialize token service", zap.Error(err))
	}
	defer tokenService.Close()

	ledgerService := services.NewLedgerService(db.DB)

	watcherService, err := services.NewWatcherService(
		tokenService,
		ledgerService,
		cfg.Watcher.PoolSize,
		cfg.Watcher.ConfirmationTimeout,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize confirmation watcher", zap.Error(err))
	}

	distributionService := services.NewDistributionService(
		db.DB,
		ledgerService,
		tokenService,
		watcherService,
		cfg.Chain.ChainID,
		logger,
	)

	apiServer := api.NewAPIServer(distributionService, ledgerService, tokenService, logger)
	port, err := apiServer.Start(cfg.Server.Port)
	if err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	logger.Info("PULPA distributor started",
		zap.Int("port", port),
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.String("token_address", cfg.Chain.TokenAddress),
		zap.String("distributor", tokenService.DistributorAddress()),
	)

	// Set up graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down")

	if err := apiServer.Shutdown(); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	// Let in-flight confirmation watches finish before closing the pool.
	watcherService.Shutdown()

	logger.Info("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zapCfg zap.Config
	if cfg.Env == "development" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
