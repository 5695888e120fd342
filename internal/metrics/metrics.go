// Package metrics provides Prometheus metrics for the activity API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Activity lifecycle metrics
	ActivitiesTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered with the given registerer.
// A nil registerer uses the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activity_api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "activity_api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		}, []string{"method", "path"}),
		ActivitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activity_api",
			Name:      "activities_total",
			Help:      "Total number of activity operations by outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActivitiesTotal,
	)

	return m
}

// ObserveActivity records the outcome of a create/update/delete operation.
func (m *Metrics) ObserveActivity(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ActivitiesTotal.WithLabelValues(operation, outcome).Inc()
}
