// Package app assembles the service's dependencies from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/cache"
	"github.com/joao-fontenele/orderledger/internal/config"
	"github.com/joao-fontenele/orderledger/internal/inventory"
	"github.com/joao-fontenele/orderledger/internal/memory"
	"github.com/joao-fontenele/orderledger/internal/messaging"
	"github.com/joao-fontenele/orderledger/internal/orders"
	"github.com/joao-fontenele/orderledger/internal/postgres"
	"github.com/joao-fontenele/orderledger/internal/store"
	"github.com/joao-fontenele/orderledger/internal/telemetry"
)

// Container owns every long-lived dependency. Build it once per process and
// release it with Close.
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       store.Store
	Ledger      *inventory.Ledger
	Coordinator *orders.Coordinator
	Producer    *messaging.Producer

	ping    func(ctx context.Context) error
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, ping: func(context.Context) error { return nil }}

	if err := c.openStore(); err != nil {
		_ = c.Close()
		return nil, err
	}

	ledger, err := inventory.NewLedger()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Ledger = ledger

	opts := []orders.Option{
		orders.WithMaxItems(cfg.Orders.MaxItems),
		orders.WithStatusUpdatePolicy(orders.PolicyFor(cfg.Orders.RequireSellerOwnership)),
	}

	if cfg.Redis.Enabled() {
		rdb := cache.NewClient(cfg.Redis.Addr)
		c.closers = append(c.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis_unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		opts = append(opts, orders.WithCache(cache.NewOrderCache(rdb, cfg.Redis.CacheTTL)))
		c.addPing(func(ctx context.Context) error { return pingRedis(ctx, rdb) })
	}

	if cfg.Kafka.Enabled() {
		c.Producer = messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		c.closers = append(c.closers, c.Producer.Close)
		opts = append(opts, orders.WithEventPublisher(c.Producer))
	}

	coordinator, err := orders.NewCoordinator(c.Store, ledger, logger, opts...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Coordinator = coordinator

	return c, nil
}

func (c *Container) openStore() error {
	switch c.Config.Store.Driver {
	case config.DriverMemory:
		c.Store = memory.NewStore()
		c.Logger.Warn("using in-memory store, data is lost on restart")
		return nil
	case config.DriverPostgres:
		db, err := telemetry.OpenDB(c.Config.Store.PostgresURL, c.Config.Store.MaxOpenConns)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, db.Close)
		pg := postgres.NewStore(db)
		c.Store = pg
		c.ping = pg.Ping
		return nil
	default:
		return fmt.Errorf("unsupported store driver %q", c.Config.Store.Driver)
	}
}

func (c *Container) addPing(next func(ctx context.Context) error) {
	prev := c.ping
	c.ping = func(ctx context.Context) error {
		return errors.Join(prev(ctx), next(ctx))
	}
}

// Ping checks every backing service the container connected to.
func (c *Container) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
