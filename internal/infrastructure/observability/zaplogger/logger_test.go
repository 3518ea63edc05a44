package zaplogger

import (
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), observability.F("service", "checkout"))

	l.With(observability.F("request_id", "r-1")).Error("reconciliation_required",
		observability.F("captured_amount", decimal.RequireFromString("12.50")),
		observability.F("error", errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "reconciliation_required", entry.Message)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "checkout", fields["service"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "12.5", fields["captured_amount"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLoggerSkipsNilError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))

	var err error
	l.Info("use_case_done", observability.F("error", err), observability.F("outcome", "success"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	_, hasErr := fields["error"]
	assert.False(t, hasErr)
	assert.Equal(t, "success", fields["outcome"])
}

func TestLoggerKeepsDurationsAndIDLists(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	New(zap.New(core)).Info("use_case_done",
		observability.F("timeout", 2*time.Second),
		observability.F("low_stock_products", []int64{1, 3}),
	)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, 2*time.Second, fields["timeout"])
	assert.Equal(t, []any{int64(1), int64(3)}, fields["low_stock_products"])
}
