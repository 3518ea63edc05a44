package checkout_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubGateway struct {
	mu sync.Mutex

	amount     decimal.Decimal
	createErr  error
	captureErr error
	// idempotent gateways answer repeated captures with the same amount.
	idempotent bool
	onCapture  func()

	captured     map[string]int
	createCalls  int
	captureCalls int
}

func newStubGateway(amount string) *stubGateway {
	return &stubGateway{amount: dec(amount), captured: make(map[string]int)}
}

func (g *stubGateway) CreateIntent(ctx context.Context, items []dompayment.IntentItem, total decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return "", g.createErr
	}
	return fmt.Sprintf("INT-%d", g.createCalls), nil
}

func (g *stubGateway) CaptureIntent(ctx context.Context, externalOrderID string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.onCapture != nil {
		g.onCapture()
	}
	if g.captureErr != nil {
		return decimal.Zero, g.captureErr
	}
	if g.captured[externalOrderID] > 0 && !g.idempotent {
		return decimal.Zero, dompayment.ErrAlreadyCaptured
	}
	g.captured[externalOrderID]++
	return g.amount, nil
}

func (g *stubGateway) calls() (create, capture int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.captureCalls
}

type sequenceIDs struct{ n atomic.Int64 }

func (s *sequenceIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	store     *memory.Store
	gateway   *stubGateway
	publisher *recordingPublisher
	logs      *observer.ObservedLogs
	tel       observability.Observability
	capture   *checkout.CaptureUseCase
	intent    *checkout.CreateIntentUseCase
}

// newFixture seeds two products (mug 10.00 x3, tee 20.00 x1), one address per
// user and the intents PAY-1 (u-1, address 100) and PAY-2 (u-2, address 200).
func newFixture(t *testing.T, capturedAmount string) *fixture {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.PutProduct(domcatalog.Product{ID: 1, Name: "mug", Price: dec("10.00"), Stock: 3}))
	require.NoError(t, store.PutProduct(domcatalog.Product{ID: 2, Name: "tee", Price: dec("20.00"), Stock: 1}))
	store.PutAddress(domaddress.Address{ID: 100, UserID: "u-1"})
	store.PutAddress(domaddress.Address{ID: 200, UserID: "u-2"})
	for _, in := range []dompayment.Intent{
		{ExternalOrderID: "PAY-1", UserID: "u-1", AddressID: 100, Total: dec(capturedAmount)},
		{ExternalOrderID: "PAY-2", UserID: "u-2", AddressID: 200, Total: dec(capturedAmount)},
	} {
		require.NoError(t, store.Intents().Save(context.Background(), in))
	}

	core, logs := observer.New(zapcore.DebugLevel)
	tel := infraobs.New(nil, zaplogger.New(zap.New(core)), nil, nil)

	gw := newStubGateway(capturedAmount)
	pub := &recordingPublisher{}
	return &fixture{
		store:     store,
		gateway:   gw,
		publisher: pub,
		logs:      logs,
		tel:       tel,
		capture:   checkout.NewCaptureUseCase(store, gw, &sequenceIDs{}, pub, tel),
		intent:    checkout.NewCreateIntentUseCase(store.Addresses(), store.Intents(), gw, tel),
	}
}

func (f *fixture) addToCart(t *testing.T, userID string, productID int64, qty int) {
	t.Helper()
	require.NoError(t, f.store.Carts().AddItem(context.Background(), userID, productID, qty))
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	n, err := f.store.Inventory().Stock(context.Background(), productID)
	require.NoError(t, err)
	return n
}

func (f *fixture) sold(t *testing.T, productID int64) int {
	t.Helper()
	n, err := f.store.Sales().QuantitySold(context.Background(), productID)
	require.NoError(t, err)
	return n
}

func (f *fixture) cartSize(t *testing.T, userID string) int {
	t.Helper()
	c, err := f.store.Carts().Get(context.Background(), userID)
	require.NoError(t, err)
	return len(c.Items)
}

func teeWithStock(n int) domcatalog.Product {
	return domcatalog.Product{ID: 2, Name: "tee", Price: dec("20.00"), Stock: n}
}

// blindStore hides the first lookups by external id, as if another process
// committed the order after this one checked.
type blindStore struct {
	*memory.Store
	mu   sync.Mutex
	hide int
}

func (b *blindStore) Orders() domorder.Repository {
	return &blindOrders{Repository: b.Store.Orders(), b: b}
}

type blindOrders struct {
	domorder.Repository
	b *blindStore
}

func (o *blindOrders) FindByExternalID(ctx context.Context, externalOrderID string) (*domorder.Order, error) {
	o.b.mu.Lock()
	hidden := o.b.hide > 0
	if hidden {
		o.b.hide--
	}
	o.b.mu.Unlock()
	if hidden {
		return nil, domorder.ErrNotFound
	}
	return o.Repository.FindByExternalID(ctx, externalOrderID)
}
