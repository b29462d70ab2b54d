package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/app"
	"github.com/joao-fontenele/orderledger/internal/config"
	"github.com/joao-fontenele/orderledger/internal/logging"
	"github.com/joao-fontenele/orderledger/internal/messaging"
	"github.com/joao-fontenele/orderledger/internal/telemetry"
	"github.com/joao-fontenele/orderledger/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("order-cache-projector", "unknown", "unknown", "info").Fatal("invalid_config", zap.Error(err))
	}

	logger := logging.Must(cfg.App.Name+"-worker", cfg.App.Env, cfg.App.Version, cfg.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker_failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if !cfg.Kafka.Enabled() {
		return errors.New("KAFKA_BROKERS is required")
	}
	if !cfg.Redis.Enabled() {
		return errors.New("REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := telemetry.Resource{ServiceName: cfg.App.Name + "-worker", ServiceVersion: cfg.App.Version, Environment: cfg.App.Env}
	shutdownTracer, err := telemetry.InitTracerProvider(ctx, res, cfg.Tracing.Endpoint, cfg.Tracing.Enabled)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	brokers := cfg.Kafka.Brokers

	// The worker only reads and caches; it never publishes.
	appCfg := *cfg
	appCfg.Kafka.Brokers = nil
	container, err := app.New(ctx, &appCfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	consumer := messaging.NewConsumer(brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID)
	defer func() { _ = consumer.Close() }()

	projector := worker.NewCacheProjector(container.Coordinator, logger)

	logger.Info("worker_starting",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.Kafka.EventsTopic),
		zap.String("group_id", cfg.Kafka.GroupID),
	)

	if err := consumer.Consume(ctx, projector.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("worker_stopped")
			return nil
		}
		return err
	}
	return nil
}
