package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// table binds a row scanner to a transaction. Entity-specific queries are
// free functions over it.
type table[T any] struct {
	q      queryer
	entity string
	scan   func(scanner) (T, error)
}

// one returns ErrNotFound, wrapped with key, when the query yields no row.
func (t table[T]) one(ctx context.Context, key, query string, args ...any) (*T, error) {
	row, err := t.scan(t.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", t.entity, key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.Persistence("select "+t.entity, err)
	}
	return &row, nil
}

func (t table[T]) many(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence("select "+t.entity, err)
	}
	defer func() { _ = rows.Close() }()

	result := []T{}
	for rows.Next() {
		row, err := t.scan(rows)
		if err != nil {
			return nil, domain.Persistence("scan "+t.entity, err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("select "+t.entity, err)
	}

	return result, nil
}

func (t table[T]) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.Persistence("write "+t.entity, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, domain.Persistence("write "+t.entity, err)
	}

	return rowsAffected, nil
}
