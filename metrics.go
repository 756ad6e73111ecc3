package login

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for transition metrics
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics records login flow counters. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_flow_transitions_total",
				Help: "Total number of login page transitions by outcome",
			},
			[]string{"transition", "outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "login_flow_handle_duration_seconds",
			Help:    "Login page request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.transitions, m.duration)
	}
	return m
}

func (m *Metrics) recordTransition(transition Transition, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(transition), outcome).Inc()
}

func (m *Metrics) observeHandle(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
