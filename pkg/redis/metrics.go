package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

var (
	redisRequestsTotal   *prometheus.CounterVec
	redisErrorsTotal     *prometheus.CounterVec
	redisRequestDuration *prometheus.HistogramVec
)

func init() {
	redisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis requests by method.",
		},
		[]string{"method"},
	)
	redisErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of Redis errors by method.",
		},
		[]string{"method"},
	)
	redisRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	prometheus.MustRegister(redisRequestsTotal, redisErrorsTotal, redisRequestDuration)
}

// MetricsClient wraps Client to collect Prometheus metrics.
type MetricsClient struct {
	next *Client
}

// NewMetricsClient creates an instrumented Redis client.
func NewMetricsClient(next *Client) *MetricsClient {
	return &MetricsClient{next: next}
}

// observe records one call. A missing key on get is not an error.
func observe(method string, start time.Time, err error) {
	redisRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	redisRequestsTotal.WithLabelValues(method).Inc()
	if err != nil && err != goredis.Nil {
		redisErrorsTotal.WithLabelValues(method).Inc()
	}
}

// Get instruments Client.Get.
func (m *MetricsClient) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	result, err := m.next.Get(ctx, key)
	observe("get", start, err)
	return result, err
}

// Set instruments Client.Set.
func (m *MetricsClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := m.next.Set(ctx, key, value, ttl)
	observe("set", start, err)
	return err
}

// SetNX instruments Client.SetNX.
func (m *MetricsClient) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.SetNX(ctx, key, value, ttl)
	observe("setnx", start, err)
	return ok, err
}

// Delete instruments Client.Delete.
func (m *MetricsClient) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

// CompareAndDelete instruments Client.CompareAndDelete.
func (m *MetricsClient) CompareAndDelete(ctx context.Context, key, token string) (bool, error) {
	start := time.Now()
	ok, err := m.next.CompareAndDelete(ctx, key, token)
	observe("compare_and_delete", start, err)
	return ok, err
}

// CompareAndExpire instruments Client.CompareAndExpire.
func (m *MetricsClient) CompareAndExpire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.CompareAndExpire(ctx, key, token, ttl)
	observe("compare_and_expire", start, err)
	return ok, err
}

// Ping forwards to the underlying client for health checks.
func (m *MetricsClient) Ping(ctx context.Context) *goredis.StatusCmd {
	return m.next.Ping(ctx)
}

// Close closes underlying client.
func (m *MetricsClient) Close() error {
	return m.next.Close()
}

// TxPipeline forwards to the underlying client.
func (m *MetricsClient) TxPipeline() goredis.Pipeliner {
	return m.next.TxPipeline()
}
