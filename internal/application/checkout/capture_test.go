package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCaptureMaterializesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "40.00")
	f.addToCart(t, "u-1", 1, 2)
	f.addToCart(t, "u-1", 2, 1)

	res, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)

	assert.False(t, res.Replayed)
	assert.Equal(t, domorder.StatusProcessing, res.Status)
	assert.True(t, res.Total.Equal(dec("40")))
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].UnitPrice.Equal(dec("10")))
	assert.True(t, res.Items[0].Subtotal.Equal(dec("20")))

	o, err := f.store.Orders().FindByExternalID(ctx, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, o.ID)
	assert.Equal(t, int64(100), o.AddressID)
	assert.True(t, o.Total.Equal(o.ItemsSubtotal()))

	assert.Equal(t, 1, f.stock(t, 1))
	assert.Equal(t, 0, f.stock(t, 2))
	assert.Equal(t, 2, f.sold(t, 1))
	assert.Equal(t, 1, f.sold(t, 2))
	assert.Zero(t, f.cartSize(t, "u-1"))

	records := f.store.Records()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, o.ID, r.OrderID)
		assert.Equal(t, "u-1", r.CustomerID)
	}
	assert.True(t, records[0].Total.Equal(dec("20")))

	assert.Equal(t, []string{"order.placed"}, f.publisher.names())
	items, err := f.store.Reconciliations().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCaptureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)

	in := checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100}
	first, err := f.capture.Execute(ctx, in)
	require.NoError(t, err)

	// the user refills the cart before the client retries
	f.addToCart(t, "u-1", 1, 1)

	second, err := f.capture.Execute(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Replayed)
	_, captures := f.gateway.calls()
	assert.Equal(t, 1, captures)
	assert.Equal(t, 1, f.stock(t, 1))
	assert.Equal(t, 2, f.sold(t, 1))
	assert.Equal(t, 1, f.cartSize(t, "u-1"))
}

func TestConcurrentCapturesWithSameExternalID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)

	const n = 16
	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
			if err != nil {
				return err
			}
			ids[i] = res.OrderID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	_, captures := f.gateway.calls()
	assert.Equal(t, 1, captures)
	assert.Equal(t, 1, f.stock(t, 1))
	assert.Equal(t, 2, f.sold(t, 1))
}

func TestLastUnitRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 2, 1)
	f.addToCart(t, "u-2", 2, 1)

	inputs := []checkout.CaptureInput{
		{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100},
		{UserID: "u-2", ExternalOrderID: "PAY-2", AddressID: 200},
	}
	errs := make([]error, len(inputs))
	var g errgroup.Group
	for i, in := range inputs {
		g.Go(func() error {
			_, errs[i] = f.capture.Execute(ctx, in)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins, losses int
	for i, err := range errs {
		if err == nil {
			wins++
			continue
		}
		losses++
		var recErr *checkout.ReconciliationError
		require.ErrorAs(t, err, &recErr)
		assert.ErrorIs(t, err, checkout.ErrInsufficientStock)
		assert.True(t, recErr.Retryable())
		assert.Equal(t, inputs[i].UserID, recErr.UserID)
		assert.Equal(t, 1, f.cartSize(t, inputs[i].UserID))
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
	assert.Equal(t, 0, f.stock(t, 2))
	assert.Equal(t, 1, f.sold(t, 2))
}

func TestCaptureRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "50.00")
	f.addToCart(t, "u-1", 1, 1)
	f.addToCart(t, "u-1", 2, 2) // only one tee in stock

	_, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)

	assert.Equal(t, 3, f.stock(t, 1))
	assert.Equal(t, 1, f.stock(t, 2))
	assert.Zero(t, f.sold(t, 1))
	assert.Equal(t, 2, f.cartSize(t, "u-1"))
	_, err = f.store.Orders().FindByExternalID(ctx, "PAY-1")
	assert.ErrorIs(t, err, domorder.ErrNotFound)
}

func TestEmptyCartNeedsReconciliation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "15.00")

	_, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.ErrorIs(t, err, checkout.ErrNotFound)

	var recErr *checkout.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.True(t, recErr.CapturedAmount.Equal(dec("15")))
	assert.Contains(t, err.Error(), "contact support")

	items, err := f.store.Reconciliations().List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domrecon.KindCaptureWithoutOrder, items[0].Kind)
	assert.Equal(t, recErr.Reference, items[0].Reference)
	assert.Equal(t, "PAY-1", items[0].ExternalOrderID)
	assert.Equal(t, "u-1", items[0].UserID)
	assert.False(t, items[0].OccurredAt.IsZero())

	logged := f.logs.FilterMessage("reconciliation_required").All()
	require.Len(t, logged, 1)
	fields := logged[0].ContextMap()
	assert.Equal(t, "PAY-1", fields["external_order_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "15.00", fields["captured_amount"])
	assert.Contains(t, fields, "occurred_at")

	assert.Equal(t, 3, f.stock(t, 1))
	assert.Equal(t, []string{"checkout.reconciliation_required"}, f.publisher.names())
}

func TestCapturedAmountIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "18.00")
	f.addToCart(t, "u-1", 1, 2)

	res, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(dec("18")))

	items, err := f.store.Reconciliations().List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domrecon.KindAmountMismatch, items[0].Kind)
	assert.Equal(t, res.OrderID, items[0].OrderID)
	assert.Len(t, f.logs.FilterMessage("amount_discrepancy").All(), 1)
}

func TestCaptureWithinToleranceIsNotAudited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.01")
	f.addToCart(t, "u-1", 1, 2)

	_, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)

	items, err := f.store.Reconciliations().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCaptureRejectsForeignAddress(t *testing.T) {
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)

	_, err := f.capture.Execute(context.Background(), checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 200})
	require.ErrorIs(t, err, checkout.ErrValidation)

	_, captures := f.gateway.calls()
	assert.Zero(t, captures)
	assert.Equal(t, 3, f.stock(t, 1))
	assert.Equal(t, 1, f.cartSize(t, "u-1"))
}

func TestCaptureValidatesInput(t *testing.T) {
	f := newFixture(t, "20.00")
	for name, in := range map[string]checkout.CaptureInput{
		"missing user":     {ExternalOrderID: "PAY-1", AddressID: 100},
		"missing external": {UserID: "u-1", AddressID: 100},
		"missing address":  {UserID: "u-1", ExternalOrderID: "PAY-1"},
		"unknown address":  {UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 999},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.capture.Execute(context.Background(), in)
			assert.ErrorIs(t, err, checkout.ErrValidation)
		})
	}
}

func TestGatewayFailureChangesNothing(t *testing.T) {
	f := newFixture(t, "20.00")
	f.gateway.captureErr = dompayment.ErrDeclined
	f.addToCart(t, "u-1", 1, 2)

	_, err := f.capture.Execute(context.Background(), checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.ErrorIs(t, err, checkout.ErrGateway)
	assert.ErrorIs(t, err, dompayment.ErrDeclined)

	var recErr *checkout.ReconciliationError
	assert.False(t, errors.As(err, &recErr))
	assert.Equal(t, 3, f.stock(t, 1))
	assert.Equal(t, 1, f.cartSize(t, "u-1"))
	assert.Empty(t, f.publisher.names())
}

func TestCanceledBeforeCaptureHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.ErrorIs(t, err, context.Canceled)

	_, captures := f.gateway.calls()
	assert.Zero(t, captures)
	assert.Equal(t, 1, f.cartSize(t, "u-1"))
}

func TestCancelAfterCaptureStillCommits(t *testing.T) {
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.onCapture = cancel

	res, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, 1, f.stock(t, 1))
	assert.Zero(t, f.cartSize(t, "u-1"))
}

func TestExternalIDOwnedByAnotherUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)
	_, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)

	_, err = f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-2", ExternalOrderID: "PAY-1", AddressID: 200})
	assert.ErrorIs(t, err, checkout.ErrValidation)
}

func TestRetryAfterReconciliationReusesCapture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "40.00")
	f.addToCart(t, "u-1", 2, 2)

	in := checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100}
	_, err := f.capture.Execute(ctx, in)
	var recErr *checkout.ReconciliationError
	require.ErrorAs(t, err, &recErr)

	// an operator restocks, the client retries the same capture
	require.NoError(t, f.store.PutProduct(teeWithStock(5)))
	res, err := f.capture.Execute(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(dec("40")))

	_, captures := f.gateway.calls()
	assert.Equal(t, 2, captures)
	assert.Equal(t, 3, f.stock(t, 2))

	items, err := f.store.Reconciliations().List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, recErr.Reference, items[0].Reference)
	assert.True(t, items[0].Resolved())
	assert.Equal(t, res.OrderID, items[0].OrderID)
}

// TestConflictOnInsertReplaysWinner drives the unique external id path that
// guards requests arriving through different processes.
func TestConflictOnInsertReplaysWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.gateway.idempotent = true
	f.addToCart(t, "u-1", 1, 2)

	winner, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)
	f.addToCart(t, "u-1", 1, 1)

	blind := &blindStore{Store: f.store, hide: 1}
	other := checkout.NewCaptureUseCase(blind, f.gateway, &sequenceIDs{}, f.publisher, f.tel)
	loser, err := other.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)

	assert.Equal(t, winner.OrderID, loser.OrderID)
	assert.True(t, loser.Replayed)
	assert.Equal(t, 1, f.stock(t, 1))
	assert.Equal(t, 1, f.cartSize(t, "u-1"))
}

func TestListReconciliationsFiltersResolved(t *testing.T) {
	f := newFixture(t, "40.00")
	ctx := context.Background()
	repo := f.store.Reconciliations()

	now := time.Now().UTC()
	resolvedAt := now
	require.NoError(t, repo.Record(ctx, domrecon.Item{Reference: "r-1", Kind: domrecon.KindCaptureWithoutOrder, ExternalOrderID: "PAY-1", UserID: "u-1", CapturedAmount: dec("10.00"), OccurredAt: now}))
	require.NoError(t, repo.Record(ctx, domrecon.Item{Reference: "r-2", Kind: domrecon.KindAmountMismatch, ExternalOrderID: "PAY-2", UserID: "u-1", CapturedAmount: dec("12.00"), OccurredAt: now, OrderID: "o-2", ResolvedAt: &resolvedAt}))

	uc := checkout.NewListReconciliationsUseCase(repo, f.tel)
	all, err := uc.Execute(ctx, checkout.ListReconciliationsInput{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	open, err := uc.Execute(ctx, checkout.ListReconciliationsInput{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "r-1", open[0].Reference)
}

func TestCaptureRejectsIntentOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)
	f.addToCart(t, "u-2", 2, 1)

	in := intentInput()
	in.Items = in.Items[:1]
	in.Total = dec("20.00")
	intent, err := f.intent.Execute(ctx, in)
	require.NoError(t, err)

	_, err = f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-2", ExternalOrderID: intent.ExternalOrderID, AddressID: 200})
	require.ErrorIs(t, err, checkout.ErrValidation)
	_, captures := f.gateway.calls()
	assert.Zero(t, captures)
	assert.Equal(t, 1, f.cartSize(t, "u-2"))
	assert.Equal(t, 1, f.stock(t, 2))

	res, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: intent.ExternalOrderID, AddressID: 100})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Zero(t, f.cartSize(t, "u-1"))
}

func TestCaptureRejectsUnknownOrRedirectedIntent(t *testing.T) {
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)
	f.store.PutAddress(domaddress.Address{ID: 101, UserID: "u-1"})

	for name, in := range map[string]checkout.CaptureInput{
		"unknown intent":    {UserID: "u-1", ExternalOrderID: "PAY-404", AddressID: 100},
		"different address": {UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 101},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.capture.Execute(context.Background(), in)
			assert.ErrorIs(t, err, checkout.ErrValidation)
		})
	}
	_, captures := f.gateway.calls()
	assert.Zero(t, captures)
	assert.Equal(t, 1, f.cartSize(t, "u-1"))
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func TestCaptureInvalidatesCachedCartOnCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.00")
	f.addToCart(t, "u-1", 1, 2)
	carts := &recordingInvalidator{}
	uc := checkout.NewCaptureUseCase(f.store, f.gateway, &sequenceIDs{}, f.publisher, f.tel, checkout.WithCartInvalidator(carts))

	_, err := uc.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, carts.users)

	// a failed materialization leaves the cart, and its cached copy, alone
	f.addToCart(t, "u-2", 2, 5)
	_, err = uc.Execute(ctx, checkout.CaptureInput{UserID: "u-2", ExternalOrderID: "PAY-2", AddressID: 200})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)
	assert.Equal(t, []string{"u-1"}, carts.users)
}

func TestCaptureRoundsSubCentAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20.004")
	f.addToCart(t, "u-1", 1, 2)

	res, err := f.capture.Execute(ctx, checkout.CaptureInput{UserID: "u-1", ExternalOrderID: "PAY-1", AddressID: 100})
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(dec("20")))

	o, err := f.store.Orders().FindByExternalID(ctx, "PAY-1")
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(dec("20.00")))

	rounded := f.logs.FilterMessage("captured_amount_rounded").All()
	require.Len(t, rounded, 1)
	assert.Equal(t, "20.004", rounded[0].ContextMap()["gateway_amount"])
	assert.Equal(t, "20.00", rounded[0].ContextMap()["captured_amount"])

	items, err := f.store.Reconciliations().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
