package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/pingwatch/internal/config/scheduler"
	"github.com/NordCoder/pingwatch/internal/obs"
	kafkaRepo "github.com/NordCoder/pingwatch/internal/repository/kafka"
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

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	err = kafkaRepo.EnsureTopic(ctx, cfg.Kafka.Brokers, kafkaRepo.TopicSpec{
		Name:              cfg.Kafka.Topic,
		NumPartitions:     cfg.Kafka.Partitions,
		ReplicationFactor: 1,
		MaxWait:           30 * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("ensure topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}
	logger.Info("kafka-init ok", zap.String("topic", cfg.Kafka.Topic))
}
