// Package metrics holds the service's Prometheus instruments and the
// CloudWatch publisher for reconciliation drift.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plansync"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Business metrics
var (
	LimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_checks_total",
			Help:      "Publication limit checks by outcome",
		},
		[]string{"outcome"},
	)

	PropertyTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "property_toggles_total",
			Help:      "Property activation toggles by direction",
		},
		[]string{"direction"},
	)

	CountFixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_fixes_total",
			Help:      "Stored-counter fixes by trigger",
		},
		[]string{"trigger"},
	)

	ReportInconsistencies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_inconsistencies",
			Help:      "Inconsistent users in the most recent reconciliation report",
		},
	)
)
