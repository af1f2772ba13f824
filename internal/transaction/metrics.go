// internal/transaction/metrics.go
package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks pipeline outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	outcomes          *prometheus.CounterVec
	gasFallbacks      *prometheus.CounterVec
	durationHistogram *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors on reg. Passing nil registers
// them nowhere, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "willwe",
		Name:      "tx_outcomes_total",
		Help:      "Executed transactions by outcome and error kind",
	}, []string{"operation", "outcome", "kind"})
	gasFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "willwe",
		Name:      "gas_estimate_fallbacks_total",
		Help:      "Gas estimations replaced by the class fallback",
	}, []string{"class"})
	durationHistogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "willwe",
		Name:      "tx_duration_seconds",
		Help:      "Time from submission to terminal state",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"operation", "outcome"})

	if reg != nil {
		reg.MustRegister(outcomes, gasFallbacks, durationHistogram)
	}

	return &Metrics{
		outcomes:          outcomes,
		gasFallbacks:      gasFallbacks,
		durationHistogram: durationHistogram,
	}
}

func (m *Metrics) ObserveOutcome(operation string, outcome Outcome, kind ErrorKind, start time.Time) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome.String(), string(kind)).Inc()
	m.durationHistogram.WithLabelValues(operation, outcome.String()).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveGasFallback(class GasClass) {
	if m == nil {
		return
	}
	m.gasFallbacks.WithLabelValues(class.String()).Inc()
}
