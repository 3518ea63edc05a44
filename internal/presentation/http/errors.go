package httppresentation

import (
	"context"
	"errors"
	"net/http"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
)

type errorResponse struct {
	Error string `json:"error"`
	// Reference and Retryable are set when a payment was captured without an order.
	Reference string `json:"reference,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var recon *checkout.ReconciliationError
	if errors.As(err, &recon) {
		writeJSON(w, statusFor(recon.Err), errorResponse{
			Error:     err.Error(),
			Reference: recon.Reference,
			Retryable: recon.Retryable(),
		})
		return
	}
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, apporder.ErrValidation),
		errors.Is(err, appcart.ErrValidation),
		errors.Is(err, appinventory.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, checkout.ErrNotFound),
		errors.Is(err, apporder.ErrNotFound),
		errors.Is(err, appcart.ErrNotFound),
		errors.Is(err, appinventory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, apporder.ErrStateTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
