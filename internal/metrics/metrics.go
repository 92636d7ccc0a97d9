// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gasportal"

// APIRequestsTotal counts backend API calls.
// Labels:
//   - endpoint: logical operation, e.g. "auth_login", "request_status"
//   - code: HTTP status code, or "error" when no response arrived
var APIRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total number of backend API calls, by endpoint and status code.",
	},
	[]string{"endpoint", "code"},
)

// APIRequestDuration measures backend API round trips.
var APIRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Duration of backend API calls.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"endpoint"},
)

// UnauthorizedTotal counts 401 responses that forced a logout.
var UnauthorizedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unauthorized_total",
		Help:      "Total number of 401 responses that cleared the session.",
	},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "success" or "failure"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RequestsSubmittedTotal counts service request submissions.
// Label:
//   - result: "success" or "failure"
var RequestsSubmittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "service_requests_submitted_total",
		Help:      "Total number of service request submissions, by result.",
	},
	[]string{"result"},
)

// ActiveSockets tracks open session event websockets.
var ActiveSockets = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Current number of open session event websockets.",
	},
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
