package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	routeLatency   prometheus.Histogram
	sessionsRouted *prometheus.CounterVec
	waitingDepth   prometheus.Gauge
	notifications  prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Histogram, *prometheus.CounterVec, prometheus.Gauge, prometheus.Counter) {
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_route_latency_seconds",
			Help:    "Latency of routing a support request to a volunteer or the queue",
			Buckets: prometheus.DefBuckets,
		},
	)
	routed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_routed_total",
			Help: "Number of routed support requests",
		},
		[]string{"priority", "outcome"},
	)
	depth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "waiting_queue_depth",
			Help: "Number of sessions waiting for a volunteer",
		},
	)
	notif := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volunteer_notifications_total",
			Help: "Number of volunteer notifications handed to the hook",
		},
	)
	return lat, routed, depth, notif
}

func init() {
	routeLatency, sessionsRouted, waitingDepth, notifications = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(routeLatency, sessionsRouted, waitingDepth, notifications)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	routeLatency, sessionsRouted, waitingDepth, notifications = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
