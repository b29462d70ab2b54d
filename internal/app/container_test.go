package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/config"
	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/memory"
	"github.com/joao-fontenele/orderledger/internal/orders"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "orderledger-test"},
		Store:  config.StoreConfig{Driver: config.DriverMemory, MaxOpenConns: 1},
		Orders: config.OrdersConfig{MaxItems: 5, RequireSellerOwnership: true},
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	c, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.IsType(t, &memory.Store{}, c.Store)
	assert.Nil(t, c.Producer)
	require.NoError(t, c.Ping(context.Background()))
}

func TestRouterServesOrdersAndHealth(t *testing.T) {
	c, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Store.(*memory.Store).SeedProducts(domain.Product{ID: "P1", SellerID: "seller-1", Price: decimal.NewFromInt(5), Stock: 3})
	srv := c.NewRouter(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	}))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":"P1","quantity":2}]}`))
	req.Header.Set(orders.HeaderUserID, "buyer-1")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestSellerOwnershipIsEnforcedWhenConfigured(t *testing.T) {
	c, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Store.(*memory.Store).SeedProducts(domain.Product{ID: "P1", SellerID: "seller-1", Price: decimal.NewFromInt(5), Stock: 3})
	order, err := c.Coordinator.CreateOrder(context.Background(), orders.CreateOrderInput{
		BuyerID: "buyer-1",
		Items:   []orders.ItemInput{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = c.Coordinator.UpdateOrderStatus(context.Background(), orders.UpdateStatusInput{
		OrderID: order.ID, Status: domain.OrderStatusProcessing, ActorID: "seller-9",
	})
	require.ErrorIs(t, err, domain.ErrForbidden)
}
