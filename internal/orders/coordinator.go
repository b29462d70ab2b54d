// Package orders coordinates order creation, cancellation and status changes.
// Each mutation is one unit of work against the store: stock movements, header
// writes and item writes commit together or not at all.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/inventory"
	"github.com/joao-fontenele/orderledger/internal/logging"
	"github.com/joao-fontenele/orderledger/internal/store"
)

const (
	instrumentationName = "github.com/joao-fontenele/orderledger/internal/orders"
	defaultMaxItems     = 50
)

var tracer = otel.Tracer(instrumentationName)

// EventPublisher receives order lifecycle events after their unit of work has
// committed.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Cache is a read-through cache of order aggregates. Set stores state that
// was just committed and always wins. Fill stores state read outside a
// mutation and must not replace a copy with the same or a later UpdatedAt.
type Cache interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
	Fill(ctx context.Context, order *domain.Order) error
	Invalidate(ctx context.Context, id string) error
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	BuyerID         string
	ShippingAddress string
	Items           []ItemInput
}

type UpdateStatusInput struct {
	OrderID string
	Status  domain.OrderStatus
	ActorID string
}

type Coordinator struct {
	store    store.Store
	ledger   *inventory.Ledger
	policy   StatusUpdatePolicy
	events   EventPublisher
	cache    Cache
	logger   *zap.Logger
	now      func() time.Time
	maxItems int

	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithStatusUpdatePolicy(p StatusUpdatePolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(c *Coordinator) { c.events = p }
}

func WithCache(cache Cache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

func WithMaxItems(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

func NewCoordinator(st store.Store, ledger *inventory.Ledger, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	meter := otel.Meter(instrumentationName)

	operations, err := meter.Int64Counter("orders.operations",
		metric.WithDescription("Coordinator operations by name and outcome"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}

	duration, err := meter.Float64Histogram("orders.operation.duration",
		metric.WithDescription("Coordinator operation latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	c := &Coordinator{
		store:      st,
		ledger:     ledger,
		policy:     AllowAnyActor{},
		cache:      nopCache{},
		logger:     logger,
		now:        time.Now,
		maxItems:   defaultMaxItems,
		operations: operations,
		duration:   duration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateOrder reserves stock for every line and persists a pending order with
// the catalog prices read under lock. Lines naming the same product are checked
// against their combined quantity.
func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (order *domain.Order, err error) {
	ctx, end := c.begin(ctx, "create_order", attribute.String("buyer.id", in.BuyerID))
	defer func() { end(err) }()

	if err := c.validateCreate(in); err != nil {
		return nil, err
	}

	requested := make(map[string]int, len(in.Items))
	productIDs := make([]string, 0, len(in.Items))
	for _, line := range in.Items {
		if _, seen := requested[line.ProductID]; !seen {
			productIDs = append(productIDs, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
		if requested[line.ProductID] > domain.MaxQuantity {
			return nil, fmt.Errorf("%w: combined quantity for product %s exceeds %d", domain.ErrValidation, line.ProductID, domain.MaxQuantity)
		}
	}

	err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.Products().LockForUpdate(ctx, productIDs)
		if err != nil {
			return err
		}

		for _, id := range productIDs {
			product, ok := locked[id]
			if !ok {
				return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
			}
			if product.Stock < requested[id] {
				return &domain.StockError{ProductID: id, Requested: requested[id], Available: product.Stock}
			}
		}

		for _, line := range in.Items {
			if err := c.ledger.Reserve(ctx, tx.Products(), line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		now := c.now().UTC()
		header := &domain.Order{
			BuyerID:         in.BuyerID,
			ShippingAddress: in.ShippingAddress,
			Status:          domain.OrderStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Orders().Create(ctx, header); err != nil {
			return err
		}

		for _, line := range in.Items {
			item := &domain.OrderItem{
				OrderID:   header.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     locked[line.ProductID].Price,
			}
			if err := tx.Items().Create(ctx, item); err != nil {
				return err
			}
		}

		order, err = loadOrder(ctx, tx, header.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.afterCommit(ctx, domain.EventOrderCreated, order, "")
	logging.FromContext(ctx, c.logger).Info("order_created",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
		zap.Int("item_count", order.ItemCount),
		zap.String("total", order.Total.String()),
	)
	return order, nil
}

// CancelOrder cancels a pending order on behalf of its buyer and returns every
// reserved unit to stock. The order row stays locked for the whole unit of
// work, so concurrent cancellations release stock exactly once.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, requesterID string) (order *domain.Order, err error) {
	ctx, end := c.begin(ctx, "cancel_order", attribute.String("order.id", orderID))
	defer func() { end(err) }()

	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if current.BuyerID != requesterID {
			return fmt.Errorf("%w: order %s does not belong to %s", domain.ErrForbidden, orderID, requesterID)
		}
		if current.Status != domain.OrderStatusPending {
			return &domain.TransitionError{From: current.Status, To: domain.OrderStatusCancelled}
		}

		if err := c.releaseItems(ctx, tx, orderID); err != nil {
			return err
		}

		cancelled := domain.OrderStatusCancelled
		if _, err := tx.Orders().Update(ctx, orderID, domain.OrderUpdate{Status: &cancelled}, c.now().UTC()); err != nil {
			return err
		}

		order, err = loadOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.afterCommit(ctx, domain.EventOrderCancelled, order, domain.OrderStatusPending)
	logging.FromContext(ctx, c.logger).Info("order_cancelled",
		zap.String("order_id", order.ID),
		zap.String("requester_id", requesterID),
	)
	return order, nil
}

// UpdateOrderStatus moves an order along the status machine after the
// configured StatusUpdatePolicy admits the actor. Other transitions have no
// stock side effects.
//
// Moving to cancelled is the exception: it returns every reserved unit to
// stock in the same unit of work, exactly as CancelOrder does, so an order
// cancelled through either path has released its stock exactly once. Only the
// buyer check of CancelOrder is skipped here; the policy decides who may act.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, in UpdateStatusInput) (order *domain.Order, err error) {
	ctx, end := c.begin(ctx, "update_order_status",
		attribute.String("order.id", in.OrderID),
		attribute.String("order.status", string(in.Status)))
	defer func() { end(err) }()

	if in.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, in.Status)
	}

	var previous domain.OrderStatus
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.Orders().FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if err := c.policy.AuthorizeStatusUpdate(ctx, tx.Orders(), current, in.ActorID); err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, in.Status) {
			return &domain.TransitionError{From: current.Status, To: in.Status}
		}
		previous = current.Status

		if in.Status == domain.OrderStatusCancelled {
			if err := c.releaseItems(ctx, tx, in.OrderID); err != nil {
				return err
			}
		}

		status := in.Status
		if _, err := tx.Orders().Update(ctx, in.OrderID, domain.OrderUpdate{Status: &status}, c.now().UTC()); err != nil {
			return err
		}

		order, err = loadOrder(ctx, tx, in.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	eventType := domain.EventOrderStatusChanged
	if order.Status == domain.OrderStatusCancelled {
		eventType = domain.EventOrderCancelled
	}
	c.afterCommit(ctx, eventType, order, previous)
	logging.FromContext(ctx, c.logger).Info("order_status_updated",
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
		zap.String("actor_id", in.ActorID),
	)
	return order, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (order *domain.Order, err error) {
	ctx, end := c.begin(ctx, "get_order", attribute.String("order.id", orderID))
	defer func() { end(err) }()

	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	cached, err := c.cache.Get(ctx, orderID)
	if err != nil {
		logging.FromContext(ctx, c.logger).Warn("order_cache_get_failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err = loadOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Fill(ctx, order); err != nil {
		logging.FromContext(ctx, c.logger).Warn("order_cache_fill_failed", zap.String("order_id", orderID), zap.Error(err))
	}
	return order, nil
}

// RefreshCachedOrder caches the committed state of an order unless a newer copy
// is already cached. An order that no longer resolves is only evicted.
func (c *Coordinator) RefreshCachedOrder(ctx context.Context, orderID string) error {
	var order *domain.Order
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, orderID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return c.cache.Invalidate(ctx, orderID)
	}
	if err != nil {
		return err
	}
	return c.cache.Fill(ctx, order)
}

func (c *Coordinator) ListByBuyer(ctx context.Context, buyerID string, page domain.Page) (orders []domain.Order, err error) {
	ctx, end := c.begin(ctx, "list_by_buyer", attribute.String("buyer.id", buyerID))
	defer func() { end(err) }()

	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", domain.ErrValidation)
	}

	err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		orders, err = tx.Orders().FindByBuyer(ctx, buyerID, page.Normalize())
		return err
	})
	return orders, err
}

func (c *Coordinator) ListBySeller(ctx context.Context, sellerID string, page domain.Page) (orders []domain.Order, err error) {
	ctx, end := c.begin(ctx, "list_by_seller", attribute.String("seller.id", sellerID))
	defer func() { end(err) }()

	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller id is required", domain.ErrValidation)
	}

	err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		orders, err = tx.Orders().FindBySeller(ctx, sellerID, page.Normalize())
		return err
	})
	return orders, err
}

func (c *Coordinator) validateCreate(in CreateOrderInput) error {
	if in.BuyerID == "" {
		return fmt.Errorf("%w: buyer id is required", domain.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", domain.ErrValidation)
	}
	if len(in.Items) > c.maxItems {
		return fmt.Errorf("%w: order has %d items, at most %d allowed", domain.ErrValidation, len(in.Items), c.maxItems)
	}
	for i, line := range in.Items {
		if line.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product id", domain.ErrValidation, i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive, got %d", domain.ErrValidation, i, line.Quantity)
		}
		if line.Quantity > domain.MaxQuantity {
			return fmt.Errorf("%w: item %d quantity %d exceeds %d", domain.ErrValidation, i, line.Quantity, domain.MaxQuantity)
		}
	}
	return nil
}

func (c *Coordinator) releaseItems(ctx context.Context, tx store.Tx, orderID string) error {
	items, err := tx.Items().FindByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := c.ledger.Release(ctx, tx.Products(), item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// afterCommit caches the committed order and publishes the lifecycle event.
// Failures here are logged; the committed state is authoritative. A read miss
// racing this write cannot restore the previous state, since Fill never
// replaces a copy at least as new.
func (c *Coordinator) afterCommit(ctx context.Context, eventType string, order *domain.Order, previous domain.OrderStatus) {
	logger := logging.FromContext(ctx, c.logger)

	if err := c.cache.Set(ctx, order); err != nil {
		logger.Warn("order_cache_set_failed", zap.String("order_id", order.ID), zap.Error(err))
		if err := c.cache.Invalidate(ctx, order.ID); err != nil {
			logger.Warn("order_cache_invalidate_failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	if c.events == nil {
		return
	}
	event := domain.NewOrderEvent(eventType, order, previous, c.now().UTC())
	if err := c.events.Publish(ctx, order.ID, event); err != nil {
		logger.Error("order_event_publish_failed",
			zap.String("order_id", order.ID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "orders."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		outcome := Outcome(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if outcome == "error" || outcome == "persistence" {
				logging.FromContext(ctx, c.logger).Error(op+"_failed", zap.Error(err))
			}
		}
		span.End()

		opts := metric.WithAttributes(attribute.String("operation", op), attribute.String("outcome", outcome))
		c.operations.Add(ctx, 1, opts)
		c.duration.Record(ctx, time.Since(start).Seconds(), opts)
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}

func loadOrder(ctx context.Context, tx store.Tx, id string) (*domain.Order, error) {
	order, err := tx.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := tx.Items().FindByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	order.SetItems(items)
	return order, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*domain.Order, error) { return nil, nil }
func (nopCache) Set(context.Context, *domain.Order) error           { return nil }
func (nopCache) Fill(context.Context, *domain.Order) error          { return nil }
func (nopCache) Invalidate(context.Context, string) error           { return nil }
