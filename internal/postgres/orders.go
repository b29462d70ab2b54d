package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

const orderColumns = `o.id, o.buyer_id, o.shipping_address, o.status, o.created_at, o.updated_at`

func orderTable(q queryer) table[domain.Order] {
	return table[domain.Order]{q: q, entity: "order", scan: scanOrder}
}

func scanOrder(s scanner) (domain.Order, error) {
	var order domain.Order
	var status string
	if err := s.Scan(&order.ID, &order.BuyerID, &order.ShippingAddress, &status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	parsed, err := storedStatus(order.ID, status)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = parsed
	return order, nil
}

// storedStatus rejects rows whose status is outside the machine. Such a row is
// a storage fault, not a caller mistake.
func storedStatus(orderID, raw string) (domain.OrderStatus, error) {
	status, err := domain.ParseOrderStatus(raw)
	if err != nil {
		return "", fmt.Errorf("order %s has stored status %q: %w", orderID, raw, domain.ErrPersistence)
	}
	return status, nil
}

// summaryTable scans headers followed by the item count and total aggregate.
func summaryTable(q queryer) table[domain.Order] {
	return table[domain.Order]{q: q, entity: "order", scan: func(s scanner) (domain.Order, error) {
		var order domain.Order
		var status string
		var total decimal.Decimal
		if err := s.Scan(&order.ID, &order.BuyerID, &order.ShippingAddress, &status, &order.CreatedAt, &order.UpdatedAt, &order.ItemCount, &total); err != nil {
			return domain.Order{}, err
		}
		parsed, err := storedStatus(order.ID, status)
		if err != nil {
			return domain.Order{}, err
		}
		order.Status = parsed
		order.Total = total
		return order, nil
	}}
}

type OrderRepository struct {
	orders table[domain.Order]
	items  table[domain.OrderItem]
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return r.orders.one(ctx, id, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.id = $1
	`, id)
}

func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return r.orders.one(ctx, id, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.id = $1
		FOR UPDATE
	`, id)
}

func (r *OrderRepository) FindByBuyer(ctx context.Context, buyerID string, page domain.Page) ([]domain.Order, error) {
	return findOrdersByBuyer(ctx, r.orders.q, buyerID, page.Normalize())
}

func (r *OrderRepository) FindBySeller(ctx context.Context, sellerID string, page domain.Page) ([]domain.Order, error) {
	return findOrdersBySeller(ctx, r.orders.q, sellerID, page.Normalize())
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	_, err := r.orders.exec(ctx, `
		INSERT INTO orders (id, buyer_id, shipping_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.BuyerID, order.ShippingAddress, order.Status, order.CreatedAt, order.UpdatedAt)
	return err
}

// Update applies the non-nil fields of update; absent fields keep their value.
func (r *OrderRepository) Update(ctx context.Context, id string, update domain.OrderUpdate, at time.Time) (*domain.Order, error) {
	var status, address *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}
	address = update.ShippingAddress

	rowsAffected, err := r.orders.exec(ctx, `
		UPDATE orders
		SET status = COALESCE($2, status),
		    shipping_address = COALESCE($3, shipping_address),
		    updated_at = $4
		WHERE id = $1
	`, id, status, address, at)
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}

	return r.FindByID(ctx, id)
}

func (r *OrderRepository) HasSellerItem(ctx context.Context, orderID, sellerID string) (bool, error) {
	var exists bool
	err := r.orders.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM order_items i
			JOIN products p ON p.id = i.product_id
			WHERE i.order_id = $1 AND p.seller_id = $2
		)
	`, orderID, sellerID).Scan(&exists)
	if err != nil {
		return false, domain.Persistence("select seller items", err)
	}
	return exists, nil
}

func findOrdersByBuyer(ctx context.Context, q queryer, buyerID string, page domain.Page) ([]domain.Order, error) {
	return summaryTable(q).many(ctx, `
		SELECT `+orderColumns+`, COUNT(i.id), COALESCE(SUM(i.quantity * i.price), 0)
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.buyer_id = $1
		GROUP BY o.id
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3
	`, buyerID, page.Limit, page.Offset)
}

func findOrdersBySeller(ctx context.Context, q queryer, sellerID string, page domain.Page) ([]domain.Order, error) {
	return summaryTable(q).many(ctx, `
		SELECT `+orderColumns+`, COUNT(i.id), COALESCE(SUM(i.quantity * i.price), 0)
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.id IN (
			SELECT si.order_id
			FROM order_items si
			JOIN products p ON p.id = si.product_id
			WHERE p.seller_id = $1
		)
		GROUP BY o.id
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3
	`, sellerID, page.Limit, page.Offset)
}

// findItemsByOrders loads the items of several orders in one round trip.
func findItemsByOrders(ctx context.Context, items table[domain.OrderItem], orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := items.many(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}

	byOrder := make(map[string][]domain.OrderItem, len(orderIDs))
	for _, item := range rows {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	return byOrder, nil
}
