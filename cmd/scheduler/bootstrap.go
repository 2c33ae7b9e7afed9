package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	config "github.com/NordCoder/pingwatch/internal/config/scheduler"
	"github.com/NordCoder/pingwatch/internal/domain/outbox"
	"github.com/NordCoder/pingwatch/internal/domain/service"
	"github.com/NordCoder/pingwatch/internal/obs"
	"github.com/NordCoder/pingwatch/internal/obs/retry"
	"github.com/NordCoder/pingwatch/internal/repository/memory"
	pg "github.com/NordCoder/pingwatch/internal/repository/postgres"
	"github.com/NordCoder/pingwatch/internal/services/scheduler/repo"
)

type storage struct {
	repo   service.Repo
	reader service.Reader
	outbox outbox.Repository
	health obs.HealthFunc
	close  func()
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		return initMemory(ctx, cfg, logger)
	}
	return initPostgres(ctx, cfg, logger)
}

func initPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	var db *pg.DB
	err := retry.Do(ctx, func(ctx context.Context) error {
		d, err := pg.NewDB(ctx, cfg.DB)
		if err != nil {
			return err
		}
		db = d
		return nil
	}, retry.StartupPolicy("postgres", logger))
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.Storage.Migrate {
		if err := pg.Migrate(ctx, cfg.DB.DSN); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	tx := pg.NewTransactor(db, logger)
	services := pg.NewServiceRepo(db, tx)
	st := &storage{
		repo:   services,
		reader: services,
		health: db.Ping,
		close:  db.Close,
	}
	if cfg.Kafka.Enable {
		ob := pg.NewOutboxRepo(db)
		st.outbox = ob
		st.repo = repo.EventingRepo{Store: services, Outbox: ob, Transactor: tx}
	}
	return st, nil
}

func initMemory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	m := memory.NewServiceRepo()
	for _, s := range cfg.Seed {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		svc := &service.Service{Name: s.Name, URL: s.URL, IntervalMinutes: s.IntervalMinutes, IsActive: active}
		if err := m.Create(ctx, svc); err != nil {
			return nil, fmt.Errorf("seed %q: %w", s.URL, err)
		}
		logger.Info("service registered", zap.String("service_id", svc.ID.String()), zap.String("url", svc.URL))
	}
	return &storage{
		repo:   m,
		reader: m,
		health: func(context.Context) error { return nil },
		close:  func() {},
	}, nil
}
