package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type intent struct {
	items    []domain.IntentItem
	amount   decimal.Decimal
	captured bool
}

// Gateway is an in-process payment provider for local runs and tests.
// Captures succeed with the configured probability; a declined capture leaves
// the intent open so it can be retried.
type Gateway struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	intents     map[string]*intent
}

func New(successRate float64) *Gateway {
	g := &Gateway{
		random:  rand.New(rand.NewSource(time.Now().UnixNano())),
		intents: make(map[string]*intent),
	}
	g.SetSuccessRate(successRate)
	return g
}

func (g *Gateway) CreateIntent(ctx context.Context, items []domain.IntentItem, total decimal.Decimal) (string, error) {
	// respect cancellation even though this is mocked
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(items) == 0 || !total.IsPositive() {
		return "", fmt.Errorf("simulated gateway: invalid intent")
	}

	id := uuid.NewString()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id] = &intent{
		items:  append([]domain.IntentItem(nil), items...),
		amount: total,
	}
	return id, nil
}

func (g *Gateway) CaptureIntent(ctx context.Context, externalOrderID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[externalOrderID]
	if !ok {
		return decimal.Zero, domain.ErrIntentNotFound
	}
	if in.captured {
		return decimal.Zero, domain.ErrAlreadyCaptured
	}
	if g.random.Float64() > g.successRate {
		return decimal.Zero, domain.ErrDeclined
	}
	in.captured = true
	return in.amount, nil
}

// OverrideAmount changes what a later capture of the intent will report.
func (g *Gateway) OverrideAmount(externalOrderID string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[externalOrderID]
	if !ok {
		return domain.ErrIntentNotFound
	}
	in.amount = amount
	return nil
}

// SetSuccessRate adjusts the success rate for simulations (primarily for tests).
func (g *Gateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.successRate = rate
	g.mu.Unlock()
}

var _ domain.Gateway = (*Gateway)(nil)
