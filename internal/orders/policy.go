package orders

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/store"
)

// StatusUpdatePolicy decides whether actorID may change the status of order.
// It runs inside the status update's unit of work, after the order row is
// locked and before the transition is checked.
type StatusUpdatePolicy interface {
	AuthorizeStatusUpdate(ctx context.Context, orders store.OrderRepository, order *domain.Order, actorID string) error
}

// AllowAnyActor admits every actor. Callers that use it authorize status
// updates before reaching the coordinator.
type AllowAnyActor struct{}

func (AllowAnyActor) AuthorizeStatusUpdate(context.Context, store.OrderRepository, *domain.Order, string) error {
	return nil
}

// RequireSellerOwnership admits only sellers owning at least one product in
// the order.
type RequireSellerOwnership struct{}

func (RequireSellerOwnership) AuthorizeStatusUpdate(ctx context.Context, orders store.OrderRepository, order *domain.Order, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: actor is required to update order %s", domain.ErrForbidden, order.ID)
	}
	owns, err := orders.HasSellerItem(ctx, order.ID, actorID)
	if err != nil {
		return err
	}
	if !owns {
		return fmt.Errorf("%w: %s sells nothing in order %s", domain.ErrForbidden, actorID, order.ID)
	}
	return nil
}

// PolicyFor maps the ownership setting to a policy.
func PolicyFor(requireSellerOwnership bool) StatusUpdatePolicy {
	if requireSellerOwnership {
		return RequireSellerOwnership{}
	}
	return AllowAnyActor{}
}
