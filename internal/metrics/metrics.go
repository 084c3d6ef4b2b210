// Package metrics exposes Prometheus counters for ingestion outcomes,
// handler results and token rotations.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// Metrics holds the collectors registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	messages        *prometheus.CounterVec
	handlerResults  *prometheus.CounterVec
	handlerLatency  *prometheus.HistogramVec
	rotations       prometheus.Counter
	tokenRegistered prometheus.Counter
}

func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "push_ingestion_messages_total",
			Help: "Inbound messages by final outcome",
		}, []string{"outcome"}),
		handlerResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "push_ingestion_handler_results_total",
			Help: "Handler invocations by handler and status",
		}, []string{"handler", "status"}),
		handlerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "push_ingestion_handler_duration_seconds",
			Help:    "Handler invocation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "push_ingestion_token_rotations_total",
			Help: "Observed device token rotations",
		}),
		tokenRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "push_ingestion_token_updates_total",
			Help: "Accepted token updates, including no-op re-registrations",
		}),
	}
}

// ObserveDelivery records one DeliveryRecord.
func (m *Metrics) ObserveDelivery(rec push.DeliveryRecord) {
	m.messages.WithLabelValues(string(rec.Outcome)).Inc()
	for _, r := range rec.Handlers {
		m.handlerResults.WithLabelValues(r.Handler, string(r.Status)).Inc()
		m.handlerLatency.WithLabelValues(r.Handler).Observe(r.Elapsed.Seconds())
	}
}

func (m *Metrics) ObserveTokenUpdate() {
	m.tokenRegistered.Inc()
}

// OnTokenRotated lets Metrics be registered as a rotation listener.
func (m *Metrics) OnTokenRotated(_ context.Context, _ push.TokenRotation) error {
	m.rotations.Inc()
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
