// Package metrics holds the prometheus collectors shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "userdata"

// Metrics groups every collector the application exports
type Metrics struct {
	// Broker
	PendingTokens  prometheus.Gauge
	ActiveSessions prometheus.Gauge
	Resolutions    *prometheus.CounterVec

	// Storage
	ContainersDropped prometheus.Counter
	TablesDropped     prometheus.Counter
	Reconnects        prometheus.Counter

	// Login
	LoginAttempts *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PendingTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "pending_tokens",
			Help:      "Tokens issued to anonymous connections and not yet resolved.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "active_sessions",
			Help:      "Resolved tokens whose connection is still open.",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "resolutions_total",
			Help:      "Token resolution attempts by result.",
		}, []string{"result"}),
		ContainersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "containers_dropped_total",
			Help:      "Containers removed after their reference count reached zero.",
		}),
		TablesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "tables_dropped_total",
			Help:      "Dynamic tables dropped.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "reconnects_total",
			Help:      "Forced reconnects to the backing store.",
		}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "login_attempts_total",
			Help:      "Login attempts by kind and result.",
		}, []string{"kind", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PendingTokens,
			m.ActiveSessions,
			m.Resolutions,
			m.ContainersDropped,
			m.TablesDropped,
			m.Reconnects,
			m.LoginAttempts,
		)
	}
	return m
}
