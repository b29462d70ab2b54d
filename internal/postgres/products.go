package postgres

import (
	"context"
	"slices"

	"github.com/lib/pq"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

const productColumns = `id, seller_id, name, price, stock`

func productTable(q queryer) table[domain.Product] {
	return table[domain.Product]{q: q, entity: "product", scan: func(s scanner) (domain.Product, error) {
		var p domain.Product
		err := s.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Stock)
		return p, err
	}}
}

type ProductRepository struct {
	products table[domain.Product]
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.products.one(ctx, id, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
}

// LockForUpdate sorts ids before locking so that two transactions touching the
// same products always queue on them in the same order.
func (r *ProductRepository) LockForUpdate(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	sorted := slices.Compact(slices.Sorted(slices.Values(ids)))

	rows, err := r.products.many(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(sorted))
	if err != nil {
		return nil, err
	}

	locked := make(map[string]*domain.Product, len(rows))
	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	return locked, nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	updated, err := r.products.many(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns+`
	`, id, delta)
	if err != nil {
		return nil, err
	}

	if len(updated) == 1 {
		return &updated[0], nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &domain.StockError{ProductID: id, Requested: -delta, Available: current.Stock}
}
