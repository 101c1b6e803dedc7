package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the service counters. Construct once at startup and pass
// down; no package-level registries.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	checkoutSessions *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlo",
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook deliveries by provider, kind and outcome.",
		}, []string{"provider", "kind", "outcome"}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlo",
			Subsystem: "billing",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session creations by plan and outcome.",
		}, []string{"plan", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parlo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(m.webhookEvents, m.checkoutSessions, m.httpDuration)
	return m
}

func (m *Metrics) RecordWebhookEvent(provider, kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.webhookEvents.WithLabelValues(provider, kind, outcome).Inc()
}

func (m *Metrics) RecordCheckoutSession(plan, outcome string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(plan, outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
