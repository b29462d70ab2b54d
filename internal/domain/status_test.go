package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

var allStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

func TestCanTransition(t *testing.T) {
	allowed := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
		domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
		domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, domain.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	assert.False(t, domain.CanTransition("refunded", domain.OrderStatusCancelled))
	assert.False(t, domain.CanTransition(domain.OrderStatusPending, "refunded"))
	assert.False(t, domain.CanTransition("", ""))
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, domain.OrderStatusDelivered.IsTerminal())
	assert.True(t, domain.OrderStatusCancelled.IsTerminal())
	assert.False(t, domain.OrderStatusPending.IsTerminal())
	assert.False(t, domain.OrderStatusShipped.IsTerminal())
	assert.False(t, domain.OrderStatus("bogus").IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    domain.OrderStatus
		wantErr bool
	}{
		{raw: "pending", want: domain.OrderStatusPending},
		{raw: " Shipped ", want: domain.OrderStatusShipped},
		{raw: "CANCELLED", want: domain.OrderStatusCancelled},
		{raw: "canceled", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := domain.ParseOrderStatus(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
