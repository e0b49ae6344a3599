package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "projector"

// Projector holds the dispatcher metrics. A nil *Projector is a no-op.
type Projector struct {
	events        *prometheus.CounterVec
	conditions    *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	batches       prometheus.Counter
	violations    prometheus.Gauge
}

// NewProjector registers the projector metrics on reg.
func NewProjector(reg prometheus.Registerer) *Projector {
	factory := promauto.With(reg)
	return &Projector{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handled by the dispatcher, by kind and outcome status.",
		}, []string{"kind", "status"}),
		conditions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conditions_total",
			Help:      "Data-integrity conditions reported while projecting.",
		}, []string{"condition", "severity"}),
		applyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time to apply one event, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches committed by the projector.",
		}),
		violations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invariant_violations",
			Help:      "Violations found by the last invariant check.",
		}),
	}
}

func (p *Projector) ObserveEvent(kind, status string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.events.WithLabelValues(kind, status).Inc()
	p.applyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (p *Projector) ObserveCondition(condition, severity string) {
	if p == nil {
		return
	}
	p.conditions.WithLabelValues(condition, severity).Inc()
}

func (p *Projector) ObserveBatch() {
	if p == nil {
		return
	}
	p.batches.Inc()
}

func (p *Projector) SetViolations(n int) {
	if p == nil {
		return
	}
	p.violations.Set(float64(n))
}
