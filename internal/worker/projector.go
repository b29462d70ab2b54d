// Package worker consumes order lifecycle events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/logging"
	"github.com/joao-fontenele/orderledger/internal/messaging"
)

type CacheRefresher interface {
	RefreshCachedOrder(ctx context.Context, orderID string) error
}

// CacheProjector keeps the order cache warm by reloading every order named in
// a lifecycle event.
type CacheProjector struct {
	orders CacheRefresher
	logger *zap.Logger
}

func NewCacheProjector(orders CacheRefresher, logger *zap.Logger) *CacheProjector {
	return &CacheProjector{orders: orders, logger: logger}
}

// Handle skips payloads it cannot decode so one bad record does not block the
// partition. Refresh failures are returned and the message is redelivered.
func (p *CacheProjector) Handle(ctx context.Context, msg messaging.Message) error {
	logger := logging.FromContext(ctx, p.logger)

	var event domain.OrderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logger.Warn("order_event_undecodable", zap.String("key", msg.Key), zap.Error(err))
		return nil
	}
	if event.OrderID == "" {
		logger.Warn("order_event_without_order_id", zap.String("key", msg.Key), zap.String("event_type", event.Type))
		return nil
	}

	if err := p.orders.RefreshCachedOrder(ctx, event.OrderID); err != nil {
		logger.Error("order_cache_refresh_failed", zap.String("order_id", event.OrderID), zap.Error(err))
		return fmt.Errorf("refresh order %s: %w", event.OrderID, err)
	}

	logger.Debug("order_cache_refreshed",
		zap.String("order_id", event.OrderID),
		zap.String("event_type", event.Type),
		zap.String("status", string(event.Status)),
	)
	return nil
}
