package domain

import "time"

const (
	EventOrderCreated       = "order.created"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderItemEvent struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// OrderEvent is published once a mutation on an order has committed.
type OrderEvent struct {
	Type           string           `json:"type"`
	OrderID        string           `json:"order_id"`
	BuyerID        string           `json:"buyer_id"`
	Status         OrderStatus      `json:"status"`
	PreviousStatus OrderStatus      `json:"previous_status,omitempty"`
	Items          []OrderItemEvent `json:"items,omitempty"`
	Total          string           `json:"total"`
	Timestamp      time.Time        `json:"timestamp"`
}

func NewOrderEvent(eventType string, order *Order, previous OrderStatus, at time.Time) OrderEvent {
	items := make([]OrderItemEvent, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemEvent{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.String(),
		})
	}
	return OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		Status:         order.Status,
		PreviousStatus: previous,
		Items:          items,
		Total:          order.Total.String(),
		Timestamp:      at,
	}
}

func (e OrderEvent) EventType() string { return e.Type }
