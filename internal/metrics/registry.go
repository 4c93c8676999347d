package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/internal/pricing"
)

const namespace = "condorrun"

// Registry holds all Prometheus metrics for one process. Each Registry owns
// its own prometheus.Registry so tests can create as many as they need.
type Registry struct {
	reg *prometheus.Registry

	CycleDuration   prometheus.Histogram
	Cycles          *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	PricingDuration *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	Confirmations   *prometheus.CounterVec
	Fills           *prometheus.CounterVec
	NetValue        prometheus.Gauge
}

// Cycle results
const (
	CycleCompleted    = "completed"
	CycleMarketUnsafe = "market_unsafe"
	CycleError        = "error"
)

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a trading cycle in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Trading cycles by result",
		}, []string{"result"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Cycle decisions by strategy and reason code",
		}, []string{"strategy", "code"}),
		PricingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_duration_seconds",
			Help:      "Option pricing latency by model and status",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"model", "status"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation sessions by final state",
		}, []string{"state"}),
		Fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Execution results by status",
		}, []string{"status"}),
		NetValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_net_value",
			Help:      "Portfolio net value after the last cycle",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		r.CycleDuration,
		r.Cycles,
		r.Decisions,
		r.PricingDuration,
		r.BreakerState,
		r.Confirmations,
		r.Fills,
		r.NetValue,
	)
	return r
}

// Handler serves this registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// CycleTimer tracks one trading cycle
type CycleTimer struct {
	r     *Registry
	start time.Time
}

func (r *Registry) StartCycle() *CycleTimer {
	return &CycleTimer{r: r, start: time.Now()}
}

// Stop records the cycle duration and result
func (t *CycleTimer) Stop(result string) {
	d := time.Since(t.start)
	t.r.CycleDuration.Observe(d.Seconds())
	t.r.Cycles.WithLabelValues(result).Inc()

	log.Debug().
		Str("result", result).
		Dur("duration", d).
		Msg("Cycle metrics recorded")
}

// ObservePricing matches pricing.Observer
func (r *Registry) ObservePricing(m pricing.Model, s pricing.Status, d time.Duration) {
	r.PricingDuration.WithLabelValues(string(m), string(s)).Observe(d.Seconds())
}

func (r *Registry) RecordDecision(strategy, code string) {
	r.Decisions.WithLabelValues(strategy, code).Inc()
}

func (r *Registry) RecordConfirmation(state string) {
	r.Confirmations.WithLabelValues(state).Inc()
}

func (r *Registry) RecordFill(status string) {
	r.Fills.WithLabelValues(status).Inc()
}

// SetBreakerState maps a gobreaker state name onto the gauge
func (r *Registry) SetBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	r.BreakerState.WithLabelValues(name).Set(v)
}

// DecisionCounts reads back the decision counter keyed by "strategy/code"
func (r *Registry) DecisionCounts() map[string]float64 {
	out := make(map[string]float64)
	families, err := r.reg.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to gather metrics")
		return out
	}
	for _, mf := range families {
		if mf.GetName() != namespace+"_decisions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			out[labelValue(m, "strategy")+"/"+labelValue(m, "code")] = m.GetCounter().GetValue()
		}
	}
	return out
}

// CounterValue returns the current value of a single counter
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GaugeValue returns the current value of a single gauge
func GaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
