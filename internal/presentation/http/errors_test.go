package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDomainErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", checkout.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: 1 != 2", checkout.ErrAmountMismatch), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: declined", checkout.ErrGateway), http.StatusBadGateway},
		{fmt.Errorf("%w: cart", checkout.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: a -> b", apporder.ErrStateTransition), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestWriteDomainErrorReconciliation(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, &checkout.ReconciliationError{
		Reference:       "ref-1",
		ExternalOrderID: "PAY-1",
		UserID:          "u-1",
		CapturedAmount:  decimal.RequireFromString("30.00"),
		Err:             fmt.Errorf("%w: tee", checkout.ErrInsufficientStock),
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ref-1", body.Reference)
	assert.True(t, body.Retryable)
	assert.Contains(t, body.Error, "contact support")
}
