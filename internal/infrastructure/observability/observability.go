package observability

import (
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// Provider bundles the tracer, logger and metric instruments handed to use
// cases, workers and transports. Missing pieces fall back to no-ops.
type Provider struct {
	tracer observability.Tracer
	logger observability.Logger
	inst   instruments
}

// instruments resolves metric keys; unknown keys get a no-op instrument.
type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (in instruments) Counter(name observability.MetricKey) observability.Counter {
	if c := in.counters[name]; c != nil {
		return c
	}
	return observability.NopCounter()
}

func (in instruments) Histogram(name observability.MetricKey) observability.Histogram {
	if h := in.histograms[name]; h != nil {
		return h
	}
	return observability.NopHistogram()
}

func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) *Provider {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	inst := instruments{
		counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
	}
	for k, c := range counters {
		if c != nil {
			inst.counters[k] = c
		}
	}
	for k, h := range histograms {
		if h != nil {
			inst.histograms[k] = h
		}
	}
	return &Provider{tracer: tracer, logger: logger, inst: inst}
}

func (p *Provider) Tracer() observability.Tracer   { return p.tracer }
func (p *Provider) Logger() observability.Logger   { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.inst }

// WithLogger returns a provider that logs through logger and shares everything else.
func (p *Provider) WithLogger(logger observability.Logger) *Provider {
	if logger == nil {
		return p
	}
	cp := *p
	cp.logger = logger
	return &cp
}

var _ observability.Observability = (*Provider)(nil)
