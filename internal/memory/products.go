package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

type productRepository struct {
	s *Store
}

func (r productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx
	p, ok := r.s.products.get(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (r productRepository) LockForUpdate(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	_ = ctx
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	locked := make(map[string]*domain.Product, len(sorted))
	for _, id := range slices.Compact(sorted) {
		if p, ok := r.s.products.get(id); ok {
			locked[id] = &p
		}
	}
	return locked, nil
}

func (r productRepository) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	_ = ctx
	p, ok := r.s.products.get(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if p.Stock+delta < 0 {
		return nil, &domain.StockError{ProductID: id, Requested: -delta, Available: p.Stock}
	}
	p.Stock += delta
	r.s.products.put(id, p)
	return &p, nil
}
