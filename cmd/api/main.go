package main

import (
	"flag"
	"log"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/api"
	"engagement-tracker/internal/config"
	"engagement-tracker/internal/storage"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		port       = flag.String("port", "8080", "API server port")
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

	db, err := storage.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	server := api.NewServer(db, logger, *port)

	logger.Infof("Starting Engagement Tracker API server on port %s", *port)
	logger.Info("Available endpoints:")
	logger.Info("  GET  /api/posts - Recent tracked posts")
	logger.Info("  GET  /api/identities - Identities with rolling averages")
	logger.Info("  GET  /api/stats - Aggregate tracking statistics")
	logger.Info("  GET  /api/export/csv - Export posts to CSV")
	logger.Info("  GET  /api/health - Health check")

	if err := server.Start(); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
