package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewNotifyRetriesTotal returns a Prometheus counter for retry attempts of outbound driver notifications
func NewNotifyRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_retries_total",
		Help: "Total number of retry attempts performed by the notification channel",
	})
}

// NewDeliveriesAssignedTotal returns a counter of successful assignments
func NewDeliveriesAssignedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_assigned_total",
		Help: "Total number of deliveries assigned to a driver and vehicle",
	})
}

// NewDeliveryTransitionsTotal returns a counter of lifecycle transitions labelled by target status
func NewDeliveryTransitionsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_transitions_total",
		Help: "Total number of delivery status transitions",
	}, []string{"to"})
}

// NewEventsPublishedTotal returns a counter of bus publishes labelled by event type
func NewEventsPublishedTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbus_events_published_total",
		Help: "Total number of events published to subscriber channels",
	}, []string{"type"})
}

// NewSubscribersPrunedTotal returns a counter of subscribers removed after a failed send
func NewSubscribersPrunedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventbus_subscribers_pruned_total",
		Help: "Total number of subscribers pruned after a failed send",
	})
}

// NewSubscriptionsGauge reports the current number of subscriptions
func NewSubscriptionsGauge(count func() int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "eventbus_subscriptions",
		Help: "Current number of active subscriptions across all channels",
	}, func() float64 { return float64(count()) })
}

// NewActiveFeedsGauge reports the current number of running tracking feeds
func NewActiveFeedsGauge(count func() int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tracking_active_feeds",
		Help: "Current number of running tracking feeds",
	}, func() float64 { return float64(count()) })
}

// NewHTTPRequestsTotal returns a counter of served HTTP requests
func NewHTTPRequestsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
}

// NewHTTPRequestDuration returns a histogram of HTTP request latency
func NewHTTPRequestDuration() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
}
