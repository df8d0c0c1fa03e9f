package capture

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// extractionBuckets are latency buckets in seconds sized for vision model calls
var extractionBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120} //nolint: gochecknoglobals

// Metrics records workflow activity. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	discarded   prometheus.Counter
	extractions *prometheus.HistogramVec
}

// NewMetrics creates the workflow metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt_capture",
			Name:      "transitions_total",
			Help:      "Workflow state transitions.",
		}, []string{"from", "to"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipt_capture",
			Name:      "stale_results_discarded_total",
			Help:      "Extraction results dropped because their episode was no longer active.",
		}),
		extractions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receipt_capture",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of extraction calls by outcome.",
			Buckets:   extractionBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.transitions, m.discarded, m.extractions)
	return m
}

func (m *Metrics) transition(from, to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) staleDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) extraction(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome).Observe(d.Seconds())
}
