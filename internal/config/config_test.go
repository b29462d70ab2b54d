package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithMemoryDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, ":8081", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 50, cfg.Orders.MaxItems)
	assert.False(t, cfg.Orders.RequireSellerOwnership)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/orders?sslmode=disable")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("ORDER_CACHE_TTL", "90s")
	t.Setenv("ORDERS_MAX_ITEMS", "3")
	t.Setenv("ORDERS_REQUIRE_SELLER_OWNERSHIP", "true")
	t.Setenv("TRACING_ENABLED", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, 3, cfg.Orders.MaxItems)
	assert.True(t, cfg.Orders.RequireSellerOwnership)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres without url",
			env:  map[string]string{"STORE_DRIVER": "postgres", "POSTGRES_URL": ""},
			want: "POSTGRES_URL is required",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"STORE_DRIVER": "mysql"},
			want: `STORE_DRIVER "mysql"`,
		},
		{
			name: "non positive max items",
			env:  map[string]string{"STORE_DRIVER": "memory", "ORDERS_MAX_ITEMS": "0"},
			want: "ORDERS_MAX_ITEMS must be positive",
		},
		{
			name: "malformed bool",
			env:  map[string]string{"STORE_DRIVER": "memory", "ORDERS_REQUIRE_SELLER_OWNERSHIP": "yes"},
			want: `ORDERS_REQUIRE_SELLER_OWNERSHIP: invalid bool "yes"`,
		},
		{
			name: "malformed int",
			env:  map[string]string{"STORE_DRIVER": "memory", "ORDERS_MAX_ITEMS": "ten"},
			want: `ORDERS_MAX_ITEMS: invalid int "ten"`,
		},
		{
			name: "malformed duration",
			env:  map[string]string{"STORE_DRIVER": "memory", "ORDER_CACHE_TTL": "5 minutes"},
			want: `ORDER_CACHE_TTL: invalid duration "5 minutes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ORDERS_REQUIRE_SELLER_OWNERSHIP", "yes")
	t.Setenv("ORDERS_MAX_ITEMS", "ten")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "ORDERS_REQUIRE_SELLER_OWNERSHIP")
	assert.Contains(t, err.Error(), "ORDERS_MAX_ITEMS")
}
