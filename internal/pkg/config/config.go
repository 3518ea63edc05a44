package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	StoreBackend   string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	// RedisAddr and KafkaBrokers are optional; empty disables the component.
	RedisAddr    string
	CartCacheTTL time.Duration
	KafkaBrokers []string
	KafkaTopic   string

	PaymentSuccessRate float64
	LowStockThreshold  int
	GatewayTimeout     time.Duration
	PublishTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	c := &Config{
		ServiceName:    getenvDefault("SERVICE_NAME", "minishop-checkout"),
		Env:            getenvDefault("ENV", "dev"),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
		StoreBackend:   strings.ToLower(getenvDefault("STORE_BACKEND", BackendMemory)),
		DBHost:         getenvDefault("DB_HOST", "localhost"),
		DBUser:         getenvDefault("DB_USER", "postgres"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         getenvDefault("DB_NAME", "checkout"),
		MigrationsPath: getenvDefault("MIGRATIONS_PATH", "internal/infrastructure/postgres/migrations"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getenvDefault("KAFKA_TOPIC", "checkout.events"),
	}

	var errs []error
	c.DBPort = intVar("DB_PORT", 5432, &errs)
	c.PaymentSuccessRate = floatVar("PAYMENT_SUCCESS_RATE", 1, &errs)
	c.LowStockThreshold = intVar("LOW_STOCK_THRESHOLD", 5, &errs)
	c.CartCacheTTL = durationVar("CART_CACHE_TTL", 15*time.Minute, &errs)
	c.GatewayTimeout = durationVar("GATEWAY_TIMEOUT", 10*time.Second, &errs)
	c.PublishTimeout = durationVar("PUBLISH_TIMEOUT", 300*time.Millisecond, &errs)
	c.ShutdownTimeout = durationVar("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)

	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend))
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_SUCCESS_RATE: %v is outside [0, 1]", c.PaymentSuccessRate))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intVar(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func floatVar(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func durationVar(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: must be positive", key))
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
