package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the session store.
//
// Metrics:
//   - todorun_sessions_active - sessions currently held
//   - todorun_sessions_created_total - sessions created
//   - todorun_sessions_evicted_total{reason} - sessions removed (idle, explicit)
//   - todorun_sessions_busy_rejections_total - operations refused while a run was active
type Metrics struct {
	Active         prometheus.Gauge
	Created        prometheus.Counter
	Evicted        *prometheus.CounterVec
	BusyRejections prometheus.Counter
}

// NewMetrics registers the session collectors with reg. A nil reg uses the
// default registerer; call it once per registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "todorun",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions currently held in memory",
		}),
		Created: f.NewCounter(prometheus.CounterOpts{
			Namespace: "todorun",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		}),
		Evicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todorun",
			Subsystem: "sessions",
			Name:      "evicted_total",
			Help:      "Total number of sessions removed, by reason",
		}, []string{"reason"}),
		BusyRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: "todorun",
			Subsystem: "sessions",
			Name:      "busy_rejections_total",
			Help:      "Operations refused because the session was running",
		}),
	}
}

func (m *Metrics) created() {
	if m == nil {
		return
	}
	m.Created.Inc()
	m.Active.Inc()
}

func (m *Metrics) evicted(reason string) {
	if m == nil {
		return
	}
	m.Evicted.WithLabelValues(reason).Inc()
	m.Active.Dec()
}

func (m *Metrics) busy() {
	if m == nil {
		return
	}
	m.BusyRejections.Inc()
}
