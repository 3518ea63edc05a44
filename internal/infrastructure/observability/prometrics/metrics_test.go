package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "", "")

	c1 := r.Counter("usecase_requests_total", "help", "use_case", "outcome")
	c2 := r.Counter("usecase_requests_total", "help", "use_case", "outcome")

	c1.Add(1, observability.L("use_case", "Capture"), observability.L("outcome", "success"))
	c2.Add(2, observability.L("use_case", "Capture"), observability.L("outcome", "success"))

	cv := r.(*registry).counters["usecase_requests_total"]
	require.NotNil(t, cv)
	assert.Equal(t, float64(3), testutil.ToFloat64(cv.WithLabelValues("Capture", "success")))
}

func TestStandardInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := Standard(New(reg, "", ""))

	assert.Len(t, counters, 4)
	assert.Len(t, histograms, 3)

	counters[observability.MReconciliationItems].Add(1, observability.L("kind", "capture_without_order"))
	histograms[observability.MUsecaseDuration].Observe(0.2, observability.L("use_case", "Capture"))

	n, err := testutil.GatherAndCount(reg, "checkout_reconciliation_items_total", "usecase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
