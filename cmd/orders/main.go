package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/app"
	"github.com/joao-fontenele/orderledger/internal/config"
	"github.com/joao-fontenele/orderledger/internal/logging"
	"github.com/joao-fontenele/orderledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("orderledger", "unknown", "unknown", "info").Fatal("invalid_config", zap.Error(err))
	}

	logger := logging.Must(cfg.App.Name, cfg.App.Env, cfg.App.Version, cfg.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("orders_service_failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := telemetry.Resource{ServiceName: cfg.App.Name, ServiceVersion: cfg.App.Version, Environment: cfg.App.Env}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, res, cfg.Tracing.Endpoint, cfg.Tracing.Enabled)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(res)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("container_close_failed", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           container.NewRouter(metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("orders_service_starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("cache", cfg.Redis.Enabled()),
			zap.Bool("events", cfg.Kafka.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("orders_service_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
