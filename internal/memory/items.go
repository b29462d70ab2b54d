package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

type itemRepository struct {
	s *Store
}

func (r itemRepository) Create(ctx context.Context, item *domain.OrderItem) error {
	_ = ctx
	if _, ok := r.s.orders.get(item.OrderID); !ok {
		return fmt.Errorf("order %s: %w", item.OrderID, domain.ErrNotFound)
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	r.s.items.put(item.ID, *item)
	return nil
}

func (r itemRepository) FindByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	_ = ctx
	items := []domain.OrderItem{}
	r.s.items.each(func(item domain.OrderItem) bool {
		if item.OrderID == orderID {
			items = append(items, item)
		}
		return true
	})
	return items, nil
}
