package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"service-dispatch/internal/metrics"
)

// appMetrics owns a private registry so that several containers can coexist in one process.
type appMetrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	rateLimitExceeded   prometheus.Counter
	notifyRetries       prometheus.Counter
	deliveriesAssigned  prometheus.Counter
	deliveryTransitions *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	subscribersPruned   prometheus.Counter
}

func newMetrics() *appMetrics {
	m := &appMetrics{
		registry:            prometheus.NewRegistry(),
		httpRequests:        metrics.NewHTTPRequestsTotal(),
		httpDuration:        metrics.NewHTTPRequestDuration(),
		rateLimitExceeded:   metrics.NewRateLimitExceededTotal(),
		notifyRetries:       metrics.NewNotifyRetriesTotal(),
		deliveriesAssigned:  metrics.NewDeliveriesAssignedTotal(),
		deliveryTransitions: metrics.NewDeliveryTransitionsTotal(),
		eventsPublished:     metrics.NewEventsPublishedTotal(),
		subscribersPruned:   metrics.NewSubscribersPrunedTotal(),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.rateLimitExceeded,
		m.notifyRetries,
		m.deliveriesAssigned,
		m.deliveryTransitions,
		m.eventsPublished,
		m.subscribersPruned,
	)
	return m
}

func (m *appMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
