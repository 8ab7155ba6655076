// Package metrics exposes the Prometheus instruments shared by the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Total number of user events received labeled by kind and status",
		},
		[]string{"kind", "status"},
	)
	eventDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_duration_seconds",
			Help:    "Duration of user event handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	commerceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_requests_total",
			Help: "Total number of commerce backend requests by operation and status",
		},
		[]string{"operation", "status"},
	)
	commerceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commerce_request_duration_seconds",
			Help:    "Commerce backend request latency distributions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	cartsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carts_created_total",
			Help: "Total number of carts created in the commerce backend",
		},
	)
	catalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Catalog cache lookups labeled by result",
		},
		[]string{"result"},
	)
)

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordEvent increments event counters and records duration.
func RecordEvent(kind, status string, duration time.Duration) {
	kind = orUnknown(kind)

	botEventsTotal.WithLabelValues(kind, orUnknown(status)).Inc()
	eventDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStateTransition tracks conversation transitions.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(orUnknown(errType), orUnknown(severity)).Inc()
}

// RecordCommerceRequest tracks one call to the commerce backend.
func RecordCommerceRequest(operation, status string, duration time.Duration) {
	operation = orUnknown(operation)

	commerceRequestsTotal.WithLabelValues(operation, orUnknown(status)).Inc()
	commerceRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCartCreated counts a newly created backend cart.
func RecordCartCreated() {
	cartsCreatedTotal.Inc()
}

// RecordCatalogCache counts a catalog cache hit or miss.
func RecordCatalogCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	catalogCacheTotal.WithLabelValues(result).Inc()
}
