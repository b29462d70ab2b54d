package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

func itemTable(q queryer) table[domain.OrderItem] {
	return table[domain.OrderItem]{q: q, entity: "order item", scan: func(s scanner) (domain.OrderItem, error) {
		var item domain.OrderItem
		err := s.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price)
		return item, err
	}}
}

type OrderItemRepository struct {
	items table[domain.OrderItem]
}

func (r *OrderItemRepository) Create(ctx context.Context, item *domain.OrderItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	_, err := r.items.exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price)
	return err
}

func (r *OrderItemRepository) FindByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	byOrder, err := findItemsByOrders(ctx, r.items, []string{orderID})
	if err != nil {
		return nil, err
	}
	if items, ok := byOrder[orderID]; ok {
		return items, nil
	}
	return []domain.OrderItem{}, nil
}
