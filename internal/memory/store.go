// Package memory is an in-process implementation of the store contracts. A
// transaction holds a store-wide lock for its whole duration, so units of work
// are fully serialized; a failed unit of work is undone by restoring the
// snapshot taken when it started.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/store"
)

type Store struct {
	mu       sync.Mutex
	orders   *collection[domain.Order]
	items    *collection[domain.OrderItem]
	products *collection[domain.Product]
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		orders:   newCollection[domain.Order](),
		items:    newCollection[domain.OrderItem](),
		products: newCollection[domain.Product](),
	}
}

// SeedProducts inserts or replaces catalog rows outside of any transaction.
func (s *Store) SeedProducts(products ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products.put(p.ID, p)
	}
}

// Product returns the committed state of a product.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products.get(id)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, items, products := s.orders.snapshot(), s.items.snapshot(), s.products.snapshot()
	committed := false
	defer func() {
		if committed {
			return
		}
		s.orders, s.items, s.products = orders, items, products
	}()

	if err := fn(ctx, &tx{s: s}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

type tx struct {
	s *Store
}

func (t *tx) Orders() store.OrderRepository     { return orderRepository{s: t.s} }
func (t *tx) Items() store.OrderItemRepository  { return itemRepository{s: t.s} }
func (t *tx) Products() store.ProductRepository { return productRepository{s: t.s} }
