// Package metrics defines the Prometheus instrumentation of the merchant
// server: HTTP request counters/latency plus checkout business counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics contains HTTP-related Prometheus metrics.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// BusinessMetrics contains checkout lifecycle metrics.
type BusinessMetrics struct {
	CheckoutsCreated   prometheus.Counter
	CheckoutsCompleted prometheus.Counter
	CheckoutsCanceled  prometheus.Counter
	OrdersShipped      prometheus.Counter
	WebhookFailures    prometheus.Counter
}

// NewHTTPMetrics creates HTTP metrics for a service.
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// NewBusinessMetrics creates checkout lifecycle metrics for a service.
func NewBusinessMetrics(serviceName string) *BusinessMetrics {
	return &BusinessMetrics{
		CheckoutsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_checkouts_created_total",
				Help: "Total number of checkout sessions created",
			},
		),
		CheckoutsCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_checkouts_completed_total",
				Help: "Total number of checkout sessions completed",
			},
		),
		CheckoutsCanceled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_checkouts_canceled_total",
				Help: "Total number of checkout sessions canceled",
			},
		),
		OrdersShipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_orders_shipped_total",
				Help: "Total number of shipping events recorded",
			},
		),
		WebhookFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_webhook_failures_total",
				Help: "Total number of failed webhook notifications",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *HTTPMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
