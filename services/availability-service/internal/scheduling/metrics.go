package scheduling

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks configuration and generation activity. A nil *Metrics is a no-op.
type Metrics struct {
	configurations *prometheus.CounterVec
	generated      prometheus.Counter
	deleted        prometheus.Counter
	duration       *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
}

func NewMetrics(factory promauto.Factory, namespace string) *Metrics {
	return &Metrics{
		configurations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "configurations_total",
			Help:      "Weekly configuration attempts by outcome.",
		}, []string{"outcome"}),
		generated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "generated_total",
			Help:      "Slots inserted by regeneration.",
		}),
		deleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "deleted_total",
			Help:      "Slots removed ahead of regeneration.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "regeneration_duration_seconds",
			Help:      "Time spent regenerating slots for one provider, including storage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "cache_lookups_total",
			Help:      "Public slot cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) configured(outcome string) {
	if m == nil {
		return
	}
	m.configurations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) regenerated(trigger string, deleted int64, generated int, took time.Duration) {
	if m == nil {
		return
	}
	m.deleted.Add(float64(deleted))
	m.generated.Add(float64(generated))
	m.duration.WithLabelValues(trigger).Observe(took.Seconds())
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
