// Package metrics holds the Prometheus collectors of the notification engine.
// Each Metrics owns its registry so tests can build as many as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed  *prometheus.CounterVec
	RuleEvaluations  *prometheus.CounterVec
	ActionsExecuted  *prometheus.CounterVec
	DeliveryAttempts *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	QueueDepth       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_events_processed_total",
			Help: "Domain events processed, by trigger type",
		}, []string{"trigger_type"}),
		RuleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_rule_evaluations_total",
			Help: "Rule evaluations, by outcome",
		}, []string{"outcome"}),
		ActionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_actions_total",
			Help: "Rule actions executed, by type and status",
		}, []string{"type", "status"}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_webhook_attempts_total",
			Help: "Webhook delivery attempts, by resulting delivery status",
		}, []string{"status"}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notifyd_webhook_attempt_duration_seconds",
			Help:    "Duration of webhook HTTP attempts",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifyd_webhook_queue_depth",
			Help: "Deliveries waiting for a worker",
		}),
	}

	m.registry.MustRegister(
		m.EventsProcessed,
		m.RuleEvaluations,
		m.ActionsExecuted,
		m.DeliveryAttempts,
		m.DeliveryDuration,
		m.QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
