// Package postgres implements the store contracts on PostgreSQL through
// database/sql. Isolation comes from row locks taken inside READ COMMITTED
// transactions, never from in-process locks.
package postgres

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.Persistence("begin tx", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.Persistence("commit tx", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type tx struct {
	q queryer
}

func (t *tx) Orders() store.OrderRepository {
	return &OrderRepository{orders: orderTable(t.q), items: itemTable(t.q)}
}

func (t *tx) Items() store.OrderItemRepository {
	return &OrderItemRepository{items: itemTable(t.q)}
}

func (t *tx) Products() store.ProductRepository {
	return &ProductRepository{products: productTable(t.q)}
}
