// Package inventory guards product stock. Every stock movement goes through the
// Ledger and runs on a repository bound to the caller's unit of work, so it
// commits or rolls back together with the rest of that unit.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/store"
)

const instrumentationName = "github.com/joao-fontenele/orderledger/internal/inventory"

type Ledger struct {
	reservations metric.Int64Counter
	releases     metric.Int64Counter
}

// NewLedger registers the ledger instruments on the global MeterProvider.
func NewLedger() (*Ledger, error) {
	meter := otel.Meter(instrumentationName)

	reservations, err := meter.Int64Counter("inventory.reservations",
		metric.WithDescription("Stock reservation attempts by outcome"),
		metric.WithUnit("{reservation}"))
	if err != nil {
		return nil, fmt.Errorf("create reservations counter: %w", err)
	}

	releases, err := meter.Int64Counter("inventory.releases",
		metric.WithDescription("Units of stock returned to inventory"),
		metric.WithUnit("{unit}"))
	if err != nil {
		return nil, fmt.Errorf("create releases counter: %w", err)
	}

	return &Ledger{reservations: reservations, releases: releases}, nil
}

// Reserve takes qty units of productID out of stock. It fails with a
// *domain.StockError, leaving stock untouched, when fewer than qty units are
// available. The check and the decrement are a single conditional write, so
// two concurrent reservations can never both pass against the same units.
func (l *Ledger) Reserve(ctx context.Context, products store.ProductRepository, productID string, qty int) error {
	if qty <= 0 {
		l.recordReservation(ctx, "invalid")
		return fmt.Errorf("%w: quantity for product %s must be positive, got %d", domain.ErrValidation, productID, qty)
	}
	if qty > domain.MaxQuantity {
		l.recordReservation(ctx, "invalid")
		return fmt.Errorf("%w: quantity for product %s exceeds %d", domain.ErrValidation, productID, domain.MaxQuantity)
	}

	if _, err := products.AdjustStock(ctx, productID, -qty); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			l.recordReservation(ctx, "insufficient")
		case errors.Is(err, domain.ErrNotFound):
			l.recordReservation(ctx, "not_found")
		default:
			l.recordReservation(ctx, "error")
		}
		return err
	}

	l.recordReservation(ctx, "reserved")
	return nil
}

// Release returns qty units of productID to stock. There is no upper bound.
func (l *Ledger) Release(ctx context.Context, products store.ProductRepository, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity for product %s must be positive, got %d", domain.ErrValidation, productID, qty)
	}

	if _, err := products.AdjustStock(ctx, productID, qty); err != nil {
		return err
	}

	l.releases.Add(ctx, int64(qty), metric.WithAttributes(attribute.String("product.id", productID)))
	return nil
}

func (l *Ledger) recordReservation(ctx context.Context, outcome string) {
	l.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
