package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

type orderRepository struct {
	s *Store
}

func (r orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx
	order, ok := r.s.orders.get(id)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return order.Clone(), nil
}

// The store lock already excludes every other unit of work.
func (r orderRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r orderRepository) FindByBuyer(ctx context.Context, buyerID string, page domain.Page) ([]domain.Order, error) {
	_ = ctx
	return r.find(page, func(o domain.Order) bool { return o.BuyerID == buyerID }), nil
}

func (r orderRepository) FindBySeller(ctx context.Context, sellerID string, page domain.Page) ([]domain.Order, error) {
	_ = ctx
	return r.find(page, func(o domain.Order) bool { return r.hasSellerItem(o.ID, sellerID) }), nil
}

func (r orderRepository) Create(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := r.s.orders.get(order.ID); exists {
		return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrPersistence)
	}
	header := *order
	header.Items = nil
	header.ItemCount = 0
	header.Total = decimal.Zero
	r.s.orders.put(header.ID, header)
	return nil
}

func (r orderRepository) Update(ctx context.Context, id string, update domain.OrderUpdate, at time.Time) (*domain.Order, error) {
	_ = ctx
	order, ok := r.s.orders.get(id)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if update.Status != nil {
		order.Status = *update.Status
	}
	if update.ShippingAddress != nil {
		order.ShippingAddress = *update.ShippingAddress
	}
	order.UpdatedAt = at
	r.s.orders.put(id, order)
	return order.Clone(), nil
}

func (r orderRepository) HasSellerItem(ctx context.Context, orderID, sellerID string) (bool, error) {
	_ = ctx
	return r.hasSellerItem(orderID, sellerID), nil
}

func (r orderRepository) hasSellerItem(orderID, sellerID string) bool {
	found := false
	r.s.items.each(func(item domain.OrderItem) bool {
		if item.OrderID != orderID {
			return true
		}
		if p, ok := r.s.products.get(item.ProductID); ok && p.SellerID == sellerID {
			found = true
			return false
		}
		return true
	})
	return found
}

// find returns matching headers newest first with ItemCount and Total computed.
func (r orderRepository) find(page domain.Page, match func(domain.Order) bool) []domain.Order {
	page = page.Normalize()

	var matched []domain.Order
	r.s.orders.each(func(o domain.Order) bool {
		if match(o) {
			matched = append(matched, o)
		}
		return true
	})
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page.Offset >= len(matched) {
		return []domain.Order{}
	}
	end := min(page.Offset+page.Limit, len(matched))
	result := make([]domain.Order, 0, end-page.Offset)
	for _, o := range matched[page.Offset:end] {
		o.Total = decimal.Zero
		r.s.items.each(func(item domain.OrderItem) bool {
			if item.OrderID == o.ID {
				o.ItemCount++
				o.Total = o.Total.Add(item.Subtotal())
			}
			return true
		})
		result = append(result, o)
	}
	return result
}
