package simulated

import (
	"context"
	"testing"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oneItem = []domain.IntentItem{{ProductID: 1, Name: "mug", UnitPrice: decimal.NewFromInt(10), Quantity: 2}}

func TestCaptureOnlyOnce(t *testing.T) {
	ctx := context.Background()
	g := New(1)

	id, err := g.CreateIntent(ctx, oneItem, decimal.NewFromInt(20))
	require.NoError(t, err)

	amount, err := g.CaptureIntent(ctx, id)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(20)))

	_, err = g.CaptureIntent(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyCaptured)
}

func TestDeclinedCaptureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	g := New(0)

	id, err := g.CreateIntent(ctx, oneItem, decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = g.CaptureIntent(ctx, id)
	assert.ErrorIs(t, err, domain.ErrDeclined)

	g.SetSuccessRate(1)
	require.NoError(t, g.OverrideAmount(id, decimal.RequireFromString("19.50")))
	amount, err := g.CaptureIntent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "19.5", amount.String())
}

func TestUnknownIntent(t *testing.T) {
	_, err := New(1).CaptureIntent(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrIntentNotFound)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(1).CreateIntent(ctx, oneItem, decimal.NewFromInt(20))
	assert.ErrorIs(t, err, context.Canceled)
}
