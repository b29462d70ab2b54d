//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/cache"
	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/inventory"
	"github.com/joao-fontenele/orderledger/internal/messaging"
	"github.com/joao-fontenele/orderledger/internal/orders"
	"github.com/joao-fontenele/orderledger/internal/postgres"
	"github.com/joao-fontenele/orderledger/internal/store"
	"github.com/joao-fontenele/orderledger/internal/worker"
)

func newCoordinator(t *testing.T, db *sql.DB, opts ...orders.Option) (*orders.Coordinator, *postgres.Store) {
	t.Helper()

	st := postgres.NewStore(db)
	ledger, err := inventory.NewLedger()
	require.NoError(t, err)
	coord, err := orders.NewCoordinator(st, ledger, zap.NewNop(), opts...)
	require.NoError(t, err)
	return coord, st
}

func seedProduct(t *testing.T, db *sql.DB, id, seller string, price string, stock int) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO products (id, seller_id, name, price, stock)
		VALUES ($1, $2, $1, $3, $4)
		ON CONFLICT (id) DO UPDATE SET price = EXCLUDED.price, stock = EXCLUDED.stock
	`, id, seller, price, stock)
	require.NoError(t, err)
}

func stockOf(t *testing.T, db *sql.DB, id string) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func TestPostgresOrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	coord, _ := newCoordinator(t, db)

	t.Run("create captures price and reserves stock", func(t *testing.T) {
		seedProduct(t, db, "IT-PRICE", "seller-a", "20.00", 10)

		order, err := coord.CreateOrder(ctx, orders.CreateOrderInput{
			BuyerID:         "buyer-1",
			ShippingAddress: "1 Main St",
			Items:           []orders.ItemInput{{ProductID: "IT-PRICE", Quantity: 3}},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
		assert.True(t, order.Total.Equal(decimal.NewFromInt(60)), order.Total.String())
		assert.Equal(t, 7, stockOf(t, db, "IT-PRICE"))

		_, err = db.Exec(`UPDATE products SET price = 25 WHERE id = 'IT-PRICE'`)
		require.NoError(t, err)

		reloaded, err := coord.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, reloaded.Items, 1)
		assert.True(t, reloaded.Items[0].Price.Equal(decimal.NewFromInt(20)))
	})

	t.Run("failed line rolls back earlier reservations", func(t *testing.T) {
		seedProduct(t, db, "IT-A", "seller-a", "1.00", 10)
		seedProduct(t, db, "IT-B", "seller-b", "1.00", 1)

		_, err := coord.CreateOrder(ctx, orders.CreateOrderInput{
			BuyerID: "buyer-rollback",
			Items:   []orders.ItemInput{{ProductID: "IT-A", Quantity: 4}, {ProductID: "IT-B", Quantity: 2}},
		})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 10, stockOf(t, db, "IT-A"))
		assert.Equal(t, 1, stockOf(t, db, "IT-B"))

		list, err := coord.ListByBuyer(ctx, "buyer-rollback", domain.Page{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("cancel restores stock once", func(t *testing.T) {
		seedProduct(t, db, "IT-CANCEL", "seller-a", "3.00", 10)
		order, err := coord.CreateOrder(ctx, orders.CreateOrderInput{
			BuyerID: "buyer-2",
			Items:   []orders.ItemInput{{ProductID: "IT-CANCEL", Quantity: 4}},
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = coord.CancelOrder(ctx, order.ID, "buyer-2")
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 10, stockOf(t, db, "IT-CANCEL"))
	})

	t.Run("lists by buyer and seller", func(t *testing.T) {
		seedProduct(t, db, "IT-S1", "seller-list-1", "2.00", 10)
		seedProduct(t, db, "IT-S2", "seller-list-2", "5.00", 10)

		mixed, err := coord.CreateOrder(ctx, orders.CreateOrderInput{
			BuyerID: "buyer-list",
			Items:   []orders.ItemInput{{ProductID: "IT-S1", Quantity: 1}, {ProductID: "IT-S2", Quantity: 2}},
		})
		require.NoError(t, err)
		_, err = coord.CreateOrder(ctx, orders.CreateOrderInput{
			BuyerID: "buyer-list",
			Items:   []orders.ItemInput{{ProductID: "IT-S1", Quantity: 1}},
		})
		require.NoError(t, err)

		byBuyer, err := coord.ListByBuyer(ctx, "buyer-list", domain.Page{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, byBuyer, 2)

		bySeller, err := coord.ListBySeller(ctx, "seller-list-2", domain.Page{})
		require.NoError(t, err)
		require.Len(t, bySeller, 1)
		assert.Equal(t, mixed.ID, bySeller[0].ID)
		assert.Equal(t, 2, bySeller[0].ItemCount)
		assert.True(t, bySeller[0].Total.Equal(decimal.NewFromInt(12)), bySeller[0].Total.String())
	})

	t.Run("status machine and seller ownership", func(t *testing.T) {
		seedProduct(t, db, "IT-STATUS", "seller-own", "1.00", 10)
		strict, _ := newCoordinator(t, db, orders.WithStatusUpdatePolicy(orders.RequireSellerOwnership{}))

		order, err := strict.CreateOrder(ctx, orders.CreateOrderInput{
			BuyerID: "buyer-3",
			Items:   []orders.ItemInput{{ProductID: "IT-STATUS", Quantity: 1}},
		})
		require.NoError(t, err)

		_, err = strict.UpdateOrderStatus(ctx, orders.UpdateStatusInput{OrderID: order.ID, Status: domain.OrderStatusProcessing, ActorID: "someone-else"})
		require.ErrorIs(t, err, domain.ErrForbidden)

		_, err = strict.UpdateOrderStatus(ctx, orders.UpdateStatusInput{OrderID: order.ID, Status: domain.OrderStatusDelivered, ActorID: "seller-own"})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)

		updated, err := strict.UpdateOrderStatus(ctx, orders.UpdateStatusInput{OrderID: order.ID, Status: domain.OrderStatusProcessing, ActorID: "seller-own"})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, updated.Status)

		_, err = strict.GetOrder(ctx, "not-a-uuid")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPostgresConcurrentOrdersNeverOversell(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	coord, _ := newCoordinator(t, db)
	seedProduct(t, db, "IT-RACE-1", "seller-a", "1.00", 5)
	seedProduct(t, db, "IT-RACE-2", "seller-a", "1.00", 5)

	const workers = 12
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := []orders.ItemInput{{ProductID: "IT-RACE-1", Quantity: 3}, {ProductID: "IT-RACE-2", Quantity: 1}}
			if i%2 == 0 {
				items[0], items[1] = items[1], items[0]
			}
			_, errs[i] = coord.CreateOrder(ctx, orders.CreateOrderInput{BuyerID: "racer", Items: items})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, stockOf(t, db, "IT-RACE-1"))
	assert.Equal(t, 4, stockOf(t, db, "IT-RACE-2"))
}

func TestPostgresStoreRollsBackOnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	st := postgres.NewStore(db)

	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Products().AdjustStock(ctx, "PROD-005", -5); err != nil {
			return err
		}
		_, err := tx.Products().AdjustStock(ctx, "PROD-005", -1)
		return err
	})

	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
	assert.Equal(t, 5, stockOf(t, db, "PROD-005"))
}

func TestHTTPCreateOrderAgainstSeedData(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	coord, _ := newCoordinator(t, db)
	r := chi.NewRouter()
	orders.NewHandler(coord, zap.NewNop()).Register(r)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(
		`{"shipping_address":"221B Baker St","items":[{"product_id":"PROD-001","quantity":2}]}`))
	req.Header.Set(orders.HeaderUserID, "buyer-http")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.True(t, created.Total.Equal(decimal.RequireFromString("179.80")), created.Total.String())
	assert.Equal(t, 98, stockOf(t, db, "PROD-001"))
}

func TestOrderEventsWarmCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	brokers, kafkaCleanup := SetupKafka(ctx, t)
	defer kafkaCleanup()
	redisAddr, redisCleanup := SetupRedis(ctx, t)
	defer redisCleanup()

	db := OpenDB(t, pg.ConnStr)
	rdb := cache.NewClient(redisAddr)
	defer func() { _ = rdb.Close() }()
	orderCache := cache.NewOrderCache(rdb, time.Minute)

	const topic = "order.events.test"
	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	coord, _ := newCoordinator(t, db, orders.WithCache(orderCache), orders.WithEventPublisher(producer))

	order, err := coord.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID: "buyer-events",
		Items:   []orders.ItemInput{{ProductID: "PROD-002", Quantity: 1}},
	})
	require.NoError(t, err)

	cached, err := orderCache.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, cached, "committed mutations are cached")
	assert.Equal(t, domain.OrderStatusPending, cached.Status)

	// An evicted entry is rebuilt from the event stream.
	require.NoError(t, orderCache.Invalidate(ctx, order.ID))

	consumer := messaging.NewConsumer(brokers, topic, "projector-test", messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()
	projector := worker.NewCacheProjector(coord, zap.NewNop())

	consumeCtx, stopConsume := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(consumeCtx, projector.Handle)
	}()

	require.Eventually(t, func() bool {
		cached, err := orderCache.Get(ctx, order.ID)
		return err == nil && cached != nil && cached.ID == order.ID
	}, time.Minute, 500*time.Millisecond)

	stopConsume()
	<-done

	cached, err = orderCache.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, cached.Status)
	require.Len(t, cached.Items, 1)
	assert.Equal(t, "PROD-002", cached.Items[0].ProductID)
}

func TestOrderCacheFillKeepsNewerCopy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redisAddr, redisCleanup := SetupRedis(ctx, t)
	defer redisCleanup()

	rdb := cache.NewClient(redisAddr)
	defer func() { _ = rdb.Close() }()
	orderCache := cache.NewOrderCache(rdb, time.Minute)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pending := &domain.Order{ID: "o-fill", Status: domain.OrderStatusPending, UpdatedAt: at}
	cancelled := &domain.Order{ID: "o-fill", Status: domain.OrderStatusCancelled, UpdatedAt: at.Add(time.Second)}

	status := func() domain.OrderStatus {
		t.Helper()
		cached, err := orderCache.Get(ctx, "o-fill")
		require.NoError(t, err)
		require.NotNil(t, cached)
		return cached.Status
	}

	require.NoError(t, orderCache.Fill(ctx, pending))
	assert.Equal(t, domain.OrderStatusPending, status(), "fill populates a miss")

	require.NoError(t, orderCache.Set(ctx, cancelled))
	require.NoError(t, orderCache.Fill(ctx, pending))
	assert.Equal(t, domain.OrderStatusCancelled, status(), "fill must not replace a newer copy")

	sameVersion := *cancelled
	sameVersion.Status = domain.OrderStatusProcessing
	require.NoError(t, orderCache.Fill(ctx, &sameVersion))
	assert.Equal(t, domain.OrderStatusCancelled, status(), "fill must not replace an equal version")

	require.NoError(t, orderCache.Set(ctx, pending))
	assert.Equal(t, domain.OrderStatusPending, status(), "set always replaces")

	ttl, err := rdb.TTL(ctx, "order:o-fill").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}
