package membership

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/weftmesh/weft/internal/domain"
)

// Metrics holds the Prometheus collectors an Engine reports through. The
// package exposes plain collectors; the HTTP layer owns the registry and
// the promhttp handler.
type Metrics struct {
	ActiveSize    prometheus.Gauge
	PassiveSize   prometheus.Gauge
	Transitions   *prometheus.CounterVec
	MessagesApplied *prometheus.CounterVec
}

// NewMetrics constructs and registers a Metrics set against reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		ActiveSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "active_size",
			Help:      "Number of peers currently in the active view.",
		}),
		PassiveSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "passive_size",
			Help:      "Number of peers currently in the passive view.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "transitions_total",
			Help:      "Peer-state transitions by kind.",
		}, []string{"kind"}),
		MessagesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "messages_applied_total",
			Help:      "Inbound messages applied by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.ActiveSize, m.PassiveSize, m.Transitions, m.MessagesApplied)
	return m
}

// ObserveViewStats updates the gauges from an Engine snapshot.
func (m *Metrics) ObserveViewStats(numActive, numPassive int) {
	m.ActiveSize.Set(float64(numActive))
	m.PassiveSize.Set(float64(numPassive))
}

func transitionKindLabel(k TransitionKind) string {
	switch k {
	case Promoted:
		return "promoted"
	case Demoted:
		return "demoted"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// ObserveTransitions increments the transition counter for each transition
// in trs.
func ObserveTransitions[A domain.Addr](m *Metrics, trs []Transition[A]) {
	for _, t := range trs {
		m.Transitions.WithLabelValues(transitionKindLabel(t.Kind)).Inc()
	}
}

// ObserveMessageApplied increments the message counter for kind.
func (m *Metrics) ObserveMessageApplied(kind MessageKind) {
	m.MessagesApplied.WithLabelValues(string(kind)).Inc()
}
