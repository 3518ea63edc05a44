package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"SERVICE_NAME", "ENV", "HTTP_ADDR", "LOG_LEVEL", "LOG_FILE", "STORE_BACKEND",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "MIGRATIONS_PATH",
	"REDIS_ADDR", "CART_CACHE_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"PAYMENT_SUCCESS_RATE", "LOW_STOCK_THRESHOLD", "GATEWAY_TIMEOUT", "PUBLISH_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

// clearEnv blanks every key so values from the host do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "minishop-checkout", c.ServiceName)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, BackendMemory, c.StoreBackend)
	assert.Equal(t, 5432, c.DBPort)
	assert.Equal(t, 1.0, c.PaymentSuccessRate)
	assert.Equal(t, 5, c.LowStockThreshold)
	assert.Equal(t, 10*time.Second, c.GatewayTimeout)
	assert.Equal(t, 300*time.Millisecond, c.PublishTimeout)
	assert.Empty(t, c.KafkaBrokers)
	assert.Empty(t, c.RedisAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENT_SUCCESS_RATE", "0.25")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, c.StoreBackend)
	assert.Equal(t, 6543, c.DBPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 0.25, c.PaymentSuccessRate)
	assert.Equal(t, 3*time.Second, c.GatewayTimeout)
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	// godotenv only fills variables that are unset
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))
	require.NoError(t, os.Unsetenv("DB_NAME"))
	t.Setenv("ENV", "prod")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9090\nDB_NAME=orders\nENV=dev\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("HTTP_ADDR")
		_ = os.Unsetenv("DB_NAME")
	})

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, "orders", c.DBName)
	assert.Equal(t, "prod", c.Env)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PORT", "five")
	t.Setenv("PUBLISH_TIMEOUT", "soon")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("PAYMENT_SUCCESS_RATE", "2")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
	assert.Contains(t, err.Error(), "PUBLISH_TIMEOUT")
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "PAYMENT_SUCCESS_RATE")
}
