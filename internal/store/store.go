// Package store declares the persistence contracts the order engine runs on.
// Every repository handed out by a Tx is bound to that unit of work; nothing it
// writes is visible to other units of work until the scope commits.
package store

import (
	"context"
	"time"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

type Store interface {
	// WithinTx runs fn inside a single unit of work. The scope commits when fn
	// returns nil and rolls back on error, panic or context cancellation. The
	// error returned by fn is propagated unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Orders() OrderRepository
	Items() OrderItemRepository
	Products() ProductRepository
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// FindByIDForUpdate loads the header and holds it against concurrent
	// writers until the scope ends.
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error)
	FindByBuyer(ctx context.Context, buyerID string, page domain.Page) ([]domain.Order, error)
	// FindBySeller returns orders containing at least one item sold by sellerID,
	// with ItemCount and Total filled in.
	FindBySeller(ctx context.Context, sellerID string, page domain.Page) ([]domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, id string, update domain.OrderUpdate, at time.Time) (*domain.Order, error)
	HasSellerItem(ctx context.Context, orderID, sellerID string) (bool, error)
}

type OrderItemRepository interface {
	Create(ctx context.Context, item *domain.OrderItem) error
	FindByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error)
}

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	// LockForUpdate locks the given product rows in ascending id order and
	// returns the ones that exist, keyed by id.
	LockForUpdate(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	// AdjustStock adds delta to the product's stock. A delta that would take
	// stock below zero fails with a *domain.StockError and changes nothing.
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
}
