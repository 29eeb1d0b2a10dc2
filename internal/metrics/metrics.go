// Package metrics exposes prometheus counters for the HTTP surface and the
// upstream AI providers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nour_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nour_upstream_failures_total",
			Help: "Failed calls to AI providers",
		},
		[]string{"provider"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nour_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	FlowSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nour_flow_sessions_active",
			Help: "Open flow-session websocket connections",
		},
	)
)
