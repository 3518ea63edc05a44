package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
	cartredis "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/redis"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store *memory.Store
	mr    *miniredis.Miniredis
	svc   *cart.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.PutProduct(domcatalog.Product{ID: 1, Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 5}))
	require.NoError(t, store.PutProduct(domcatalog.Product{ID: 2, Name: "tee", Price: decimal.RequireFromString("19.99"), Stock: 5}))

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := cartredis.NewCartCache(client, time.Minute)
	return &harness{store: store, mr: mr, svc: cart.NewService(store.Carts(), store.Catalog(), cache, nil)}
}

func TestGetPricesCartAndFillsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 1, 2))
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 2, 1))

	view, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "mug", view.Lines[0].Name)
	assert.True(t, view.Lines[0].Subtotal.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, view.Total.Equal(decimal.RequireFromString("39.99")))
	assert.True(t, h.mr.Exists("cart:u-1"))
}

func TestGetServesFromCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 1, 1))
	_, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)

	// write behind the service's back; the cached copy wins until invalidated
	require.NoError(t, h.store.Carts().AddItem(ctx, "u-1", 1, 4))
	view, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Lines[0].Quantity)

	h.svc.Invalidate(ctx, "u-1")
	view, err = h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 5, view.Lines[0].Quantity)
}

func TestAddItemInvalidatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 1, 1))
	_, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, h.mr.Exists("cart:u-1"))

	require.NoError(t, h.svc.AddItem(ctx, "u-1", 1, 1))
	assert.False(t, h.mr.Exists("cart:u-1"))
}

func TestAddItemValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.AddItem(ctx, "", 1, 1), cart.ErrValidation)
	assert.ErrorIs(t, h.svc.AddItem(ctx, "u-1", 0, 1), cart.ErrValidation)
	assert.ErrorIs(t, h.svc.AddItem(ctx, "u-1", 1, 0), cart.ErrValidation)
	assert.ErrorIs(t, h.svc.AddItem(ctx, "u-1", 42, 1), cart.ErrNotFound)
}

func TestGetSurvivesCacheOutage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 2, 3))
	h.mr.Close()

	view, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Lines[0].Quantity)
}

func TestWithoutCache(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.PutProduct(domcatalog.Product{ID: 1, Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 5}))
	svc := cart.NewService(store.Carts(), store.Catalog(), nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u-1", 1, 1))
	view, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)

	empty, err := svc.Get(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)
	assert.True(t, empty.Total.IsZero())
}

func TestWorkerDropsCachedCartOnOrderPlaced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 1, 1))
	_, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, h.mr.Exists("cart:u-1"))

	bus := outbox.NewBus(nil)
	cart.NewWorker(bus, h.svc, nil).Start()
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, domorder.OrderPlacedEvent{OrderID: "o-1", CustomerID: "u-1"}))
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	bus.Stop(stopCtx)

	assert.False(t, h.mr.Exists("cart:u-1"))
}

func TestCaptureClearsCachedCartBeforeReturning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutAddress(domaddress.Address{ID: 7, UserID: "u-1"})
	require.NoError(t, h.svc.AddItem(ctx, "u-1", 1, 2))
	view, err := h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)

	gw := simulated.New(1)
	ext, err := gw.CreateIntent(ctx, []dompayment.IntentItem{{ProductID: 1, Name: "mug", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2}}, decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	require.NoError(t, h.store.Intents().Save(ctx, dompayment.Intent{ExternalOrderID: ext, UserID: "u-1", AddressID: 7, Total: decimal.RequireFromString("20.00")}))

	// no event bus: only the commit hook can drop the cached copy
	capture := checkout.NewCaptureUseCase(h.store, gw, id.NewUUIDGenerator(), nil, nil, checkout.WithCartInvalidator(h.svc))
	_, err = capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: ext, AddressID: 7})
	require.NoError(t, err)

	assert.False(t, h.mr.Exists("cart:u-1"))
	view, err = h.svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}
