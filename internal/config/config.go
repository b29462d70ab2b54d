// Package config loads service settings from the environment, after reading a
// local .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Store   StoreConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Tracing TracingConfig
	Orders  OrdersConfig
}

type AppConfig struct {
	Name     string
	Env      string
	Version  string
	LogLevel string
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Driver       string
	PostgresURL  string
	MaxOpenConns int
}

type RedisConfig struct {
	Addr     string
	CacheTTL time.Duration
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	GroupID     string
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

type OrdersConfig struct {
	MaxItems               int
	RequireSellerOwnership bool
}

// Load reads the configuration and validates it. A missing .env file is not an
// error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envParser{}
	cfg := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "orderledger"),
			Env:      getEnv("APP_ENV", "local"),
			Version:  getEnv("APP_VERSION", "dev"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8081"),
			ShutdownTimeout: env.asDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			PostgresURL:  getEnv("POSTGRES_URL", ""),
			MaxOpenConns: env.asInt("POSTGRES_MAX_OPEN_CONNS", 20),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			CacheTTL: env.asDuration("ORDER_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			EventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order.events"),
			GroupID:     getEnv("WORKER_GROUP_ID", "order-cache-projector"),
		},
		Tracing: TracingConfig{
			Enabled:  env.asBool("TRACING_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
		Orders: OrdersConfig{
			MaxItems:               env.asInt("ORDERS_MAX_ITEMS", 50),
			RequireSellerOwnership: env.asBool("ORDERS_REQUIRE_SELLER_OWNERSHIP", false),
		},
	}

	if err := errors.Join(append(env.errs, cfg.validate())...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when STORE_DRIVER=postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, memory", c.Store.Driver))
	}
	if c.Store.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("POSTGRES_MAX_OPEN_CONNS must be positive"))
	}
	if c.Orders.MaxItems <= 0 {
		errs = append(errs, errors.New("ORDERS_MAX_ITEMS must be positive"))
	}
	if c.Redis.CacheTTL <= 0 {
		errs = append(errs, errors.New("ORDER_CACHE_TTL must be positive"))
	}
	if c.Kafka.Enabled() && c.Kafka.EventsTopic == "" {
		errs = append(errs, errors.New("ORDER_EVENTS_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return defaultVal
}

// envParser reads typed values and remembers every value that does not parse,
// so a typo fails Load instead of silently selecting the default.
type envParser struct {
	errs []error
}

func (p *envParser) asInt(key string, defaultVal int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid int %q", key, v))
		return defaultVal
	}
	return i
}

func (p *envParser) asBool(key string, defaultVal bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid bool %q", key, v))
		return defaultVal
	}
	return b
}

func (p *envParser) asDuration(key string, defaultVal time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if val := strings.TrimSpace(p); val != "" {
			out = append(out, val)
		}
	}
	return out
}
