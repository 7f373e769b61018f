package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/hobbytracker/internal/config"
	"example.com/hobbytracker/internal/logger"
	"example.com/hobbytracker/internal/outbox"
	"example.com/hobbytracker/internal/persistence"
	"example.com/hobbytracker/internal/persistence/postgres"
	httptransport "example.com/hobbytracker/internal/transport/http"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if len(cfg.KafkaBrokers) == 0 {
		zl.Fatal("KAFKA_BROKERS is required for the outbox relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		zl.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := persistence.NewInitializer(postgres.NewStore(pool)).Ensure(ctx); err != nil {
		zl.Fatal("failed to initialize schema", zap.Error(err))
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithProducerLogger(zl.Named("kafka")))
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, zl.Named("outbox"), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)
	zl.Info("outbox relay started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.Duration("poll_interval", cfg.OutboxPollInterval),
		zap.Int("batch_size", cfg.OutboxBatchSize))

	metricsCfg := httptransport.DefaultServerConfig(cfg.RelayMetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())
	if err := httptransport.Run(ctx, metricsSrv, metricsCfg.ShutdownTimeout, zl.Named("metrics")); err != nil {
		zl.Error("metrics server stopped", zap.Error(err))
		stop()
	}

	dispatcher.Wait()
	zl.Info("outbox relay stopped")
}
