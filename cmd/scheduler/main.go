package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	config "github.com/NordCoder/pingwatch/internal/config/scheduler"
	"github.com/NordCoder/pingwatch/internal/domain/service"
	"github.com/NordCoder/pingwatch/internal/obs"
	"github.com/NordCoder/pingwatch/internal/obs/retry"
	outboxsvc "github.com/NordCoder/pingwatch/internal/outbox"
	"github.com/NordCoder/pingwatch/internal/prober"
	kafkaRepo "github.com/NordCoder/pingwatch/internal/repository/kafka"
	"github.com/NordCoder/pingwatch/internal/services/scheduler"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.PathFromEnv("config/scheduler.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting scheduler",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("kafka", cfg.Kafka.Enable),
		zap.Duration("tick", cfg.Sched.Tick),
	)

	otelCloser, err := obs.SetupOTel(rootCtx, cfg.AsOTELConfig())
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}

	store, err := initStorage(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}

	reg := prometheus.DefaultRegisterer
	uc := scheduler.NewUC(
		store.repo,
		prober.New(cfg.Probe.AsProberConfig(), reg),
		service.SystemClock{},
		logger,
		scheduler.Options{Concurrency: cfg.Sched.Concurrency, ProbeTimeout: cfg.Probe.Timeout},
	)
	runner := scheduler.New(logger, uc, &cfg.Sched, reg)

	grpcServer, hs, grpcLn, err := buildGRPCServer(cfg, reg)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}
	runner.OnCycle = func(s scheduler.CycleSummary) {
		st := healthpb.HealthCheckResponse_SERVING
		if s.ReadFailed {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
	}

	httpSrv, err := buildHTTPServer(cfg, runner, store.reader)
	if err != nil {
		logger.Fatal("build http", zap.Error(err))
	}
	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, prometheus.DefaultGatherer, store.health, logger)

	g, gctx := errgroup.WithContext(rootCtx)

	var producer *kafkaRepo.Producer
	if cfg.Kafka.Enable {
		producer = kafkaRepo.BootstrapProducer(rootCtx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, logger)
		dispatch := outboxsvc.MakeGlobalOutboxHandler(kafkaRepo.NewStatusEvents(producer), retry.OutboxPolicy(logger))
		relay := outboxsvc.NewOutboxRunner(logger, store.outbox, dispatch, outboxsvc.Options{
			Workers:       cfg.Outbox.Workers,
			BatchSize:     cfg.Outbox.BatchSize,
			Wait:          cfg.Outbox.Wait,
			InProgressTTL: cfg.Outbox.InProgressTTL,
		}, reg)
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		if err := runner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return serveGRPC(grpcServer, grpcLn, cfg, logger) })
	g.Go(func() error {
		if err := serveHTTP(httpSrv, cfg, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal")
		hs.Shutdown()

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		err := multierr.Combine(httpSrv.Shutdown(shCtx), ms.Shutdown(shCtx))
		grpcServer.GracefulStop()
		return err
	})

	logger.Info("scheduler started")
	runErr := g.Wait()

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if producer != nil {
		runErr = multierr.Append(runErr, producer.Close())
	}
	store.close()
	runErr = multierr.Append(runErr, otelCloser.Shutdown(shCtx))

	if runErr != nil {
		logger.Error("scheduler stopped with errors", zap.Errors("errors", multierr.Errors(runErr)))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("bye")
}
