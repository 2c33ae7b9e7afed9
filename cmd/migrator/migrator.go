package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/pingwatch/internal/config/scheduler"
	"github.com/NordCoder/pingwatch/internal/obs"
	pg "github.com/NordCoder/pingwatch/internal/repository/postgres"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv("config/scheduler.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DB.DSN == "" {
		logger.Fatal("db.dsn is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := pg.Migrate(ctx, cfg.DB.DSN); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	logger.Info("migrations: up OK")
}
