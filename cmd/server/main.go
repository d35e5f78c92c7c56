// Package main is the entry point for the portfolio backtesting service.
// It wires the market data pipeline, the simulation engine and the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/backtester/internal/clients/alphavantage"
	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/events"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/marketdata"
	"github.com/aristath/backtester/internal/reliability"
	"github.com/aristath/backtester/internal/scheduler"
	"github.com/aristath/backtester/internal/server"
	"github.com/aristath/backtester/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting backtester")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	// history.db holds synced market data, cache.db the normalized series
	// cache, backtest.db the persisted runs and journals.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	backtestDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "backtest.db"),
		Profile: database.ProfileLedger,
		Name:    "backtest",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open backtest database")
	}
	defer backtestDB.Close()

	history := marketdata.NewHistoryDB(historyDB.Conn(), log)
	if err := history.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history schema")
	}

	seriesCache := marketdata.NewSeriesCache(cacheDB.Conn(), log)
	if err := seriesCache.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	backtestRepo := backtest.NewRepository(backtestDB.Conn(), log)
	if err := backtestRepo.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backtest schema")
	}

	eventBus := events.NewBus(log)

	avClient := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	syncService := marketdata.NewSyncService(avClient, history, eventBus, log)

	var archiver backtest.ResultArchiver
	if cfg.Archive.Enabled() {
		s3Archiver, err := reliability.NewS3Archiver(context.Background(), reliability.ArchiveConfig{
			Bucket:          cfg.Archive.Bucket,
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize result archiver")
		}
		archiver = s3Archiver
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Result archiving enabled")
	}

	backtestService := backtest.NewService(history, seriesCache, backtestRepo, archiver, eventBus, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.SyncSchedule, scheduler.NewHistorySyncJob(syncService)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sync job")
	}
	if err := sched.AddJob("0 0 0 * * *", scheduler.NewBudgetResetJob(avClient)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register budget reset job")
	}
	maintenance := reliability.NewMaintenanceJob(map[string]*database.DB{
		"history":  historyDB,
		"cache":    cacheDB,
		"backtest": backtestDB,
	}, log)
	if err := sched.AddJob("0 30 3 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:             log,
		Cfg:             cfg,
		BacktestService: backtestService,
		BacktestRepo:    backtestRepo,
		SyncService:     syncService,
		Scheduler:       sched,
		EventBus:        eventBus,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Backtester stopped")
}
