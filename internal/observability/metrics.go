package observability

// MetricKey names an instrument registered at startup.
type MetricKey string

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MReconciliationItems     MetricKey = "checkout_reconciliation_items_total"
)

// Metrics resolves instruments by key. Keys that were never registered
// resolve to no-op instruments, so callers never nil-check.
type Metrics interface {
	Counter(name MetricKey) Counter
	Histogram(name MetricKey) Histogram
}

type Counter interface {
	Add(delta float64, labels ...Label)
}

type Histogram interface {
	Observe(value float64, labels ...Label)
}

// Label is a metric label pair; the label set of each key is fixed at registration.
type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }
