package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/browser"
	"engagement-tracker/internal/config"
	"engagement-tracker/internal/monitoring"
	"engagement-tracker/internal/orchestrator"
	"engagement-tracker/internal/storage"
	"engagement-tracker/internal/strategy"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	if cfg.Logging.Level == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatalf("Failed to create logs directory: %v", err)
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer file.Close()
		logger.SetOutput(file)
	}

	db, err := storage.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	manager := browser.NewManager(cfg.Browser, cfg.Proxy, logger)
	defer manager.Shutdown()

	deps := strategy.Deps{
		Config:  cfg,
		Logger:  logger,
		Browser: manager,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := monitoring.NewMonitor(logger, cfg.Logging.MetricsFile)

	orch := orchestrator.New(cfg, db, deps, logger)
	summary, err := orch.Run(ctx)
	if err != nil {
		logger.Fatalf("Tracking run failed: %v", err)
	}

	monitor.RecordRun(summary)

	if summary.Alert {
		logger.Error("Run finished with alert: over half of identities failed")
		manager.Shutdown()
		db.Close()
		os.Exit(1)
	}
	logger.Info("Tracking run finished")
}
