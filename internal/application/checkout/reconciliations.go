package checkout

import (
	"context"
	"time"

	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseListReconciliations = "checkout.list_reconciliations"

type ListReconciliationsInput struct {
	// OpenOnly hides items already linked to an order.
	OpenOnly bool
}

// ListReconciliationsUseCase is the operator view of the reconciliation queue.
type ListReconciliationsUseCase struct {
	repo domrecon.Repository
	instruments
}

func NewListReconciliationsUseCase(repo domrecon.Repository, tel observability.Observability) *ListReconciliationsUseCase {
	return &ListReconciliationsUseCase{repo: repo, instruments: newInstruments(tel)}
}

func (uc *ListReconciliationsUseCase) Execute(ctx context.Context, cmd ListReconciliationsInput) (_ []domrecon.Item, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseListReconciliations))
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"ListReconciliations",
		attribute.String("use_case", useCaseListReconciliations),
		attribute.Bool("reconciliation.open_only", cmd.OpenOnly),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var count int
	defer func() {
		uc.done(ctx, span, logger, useCaseListReconciliations, outcome, statusText, start, err,
			observability.F("items", count))
	}()

	items, err := uc.repo.List(ctx)
	if err != nil {
		outcome, statusText = "error", "LIST_FAILED"
		return nil, wrapRepositoryError(err)
	}
	if cmd.OpenOnly {
		open := items[:0]
		for _, it := range items {
			if !it.Resolved() {
				open = append(open, it)
			}
		}
		items = open
	}
	count = len(items)
	return items, nil
}
