package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds a single stock movement. Stock and item quantities are
// stored as 32-bit integers.
const MaxQuantity = math.MaxInt32

type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal is the line total at the captured unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	ShippingAddress string          `json:"shipping_address"`
	Status          OrderStatus     `json:"status"`
	Items           []OrderItem     `json:"items,omitempty"`
	ItemCount       int             `json:"item_count"`
	Total           decimal.Decimal `json:"total"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SetItems attaches the line items and recomputes ItemCount and Total from them.
func (o *Order) SetItems(items []OrderItem) {
	o.Items = items
	o.ItemCount = len(items)
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	o.Total = total
}

// Clone returns a deep copy, items included.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Items != nil {
		clone.Items = make([]OrderItem, len(o.Items))
		copy(clone.Items, o.Items)
	}
	return &clone
}

// OrderUpdate carries the mutable header fields; nil fields are left untouched.
type OrderUpdate struct {
	Status          *OrderStatus
	ShippingAddress *string
}

type Product struct {
	ID       string          `json:"id"`
	SellerID string          `json:"seller_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}
