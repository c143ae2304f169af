// Package metrics provides the sink implementations: Prometheus, InfluxDB
// and a fan-out MultiSink.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/voluntr/engine/core/metrics"
)

// PromSink records engine events in Prometheus metrics.
type PromSink struct {
	routes     *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	points     prometheus.Histogram
	queueDepth prometheus.Gauge
	sweeps     *prometheus.CounterVec
	fleet      *prometheus.GaugeVec
}

// NewPromSink registers engine metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	routes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "route_results_total",
		Help: "Total number of routing decisions",
	}, []string{"priority", "assigned", "rescued"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_outcomes_total",
		Help: "Total number of terminal session outcomes",
	}, []string{"status", "rating"})
	points := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pop_points_awarded",
		Help:    "PoP points awarded per rated session",
		Buckets: []float64{2, 3, 4, 5, 6, 7},
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_queue_depth",
		Help: "Sessions waiting for a volunteer",
	})
	sweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_actions_total",
		Help: "Sessions touched by the reassignment sweeper",
	}, []string{"action"})
	fleet := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "volunteer_directory",
		Help: "Volunteer directory aggregates at last refresh",
	}, []string{"stat"})

	for _, c := range []prometheus.Collector{routes, outcomes, points, queueDepth, sweeps, fleet} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return &PromSink{
		routes:     routes,
		outcomes:   outcomes,
		points:     points,
		queueDepth: queueDepth,
		sweeps:     sweeps,
		fleet:      fleet,
	}, nil
}

// RecordRouteResult increments the routing counter for each decision.
func (s *PromSink) RecordRouteResult(res []coremetrics.RouteResult) error {
	for _, r := range res {
		s.routes.WithLabelValues(string(r.Priority), strconv.FormatBool(r.Assigned), strconv.FormatBool(r.Rescued)).Inc()
	}
	return nil
}

// RecordQueueDepth sets the waiting-queue gauge.
func (s *PromSink) RecordQueueDepth(depth int) error {
	s.queueDepth.Set(float64(depth))
	return nil
}

// RecordSessionOutcome counts the outcome and observes awarded points.
func (s *PromSink) RecordSessionOutcome(ev coremetrics.OutcomeEvent) error {
	s.outcomes.WithLabelValues(string(ev.Status), strconv.Itoa(ev.Rating)).Inc()
	if ev.Points > 0 {
		s.points.Observe(ev.Points)
	}
	return nil
}

// RecordSweep counts sweeper actions.
func (s *PromSink) RecordSweep(res coremetrics.SweepResult) error {
	s.sweeps.WithLabelValues("rescued").Add(float64(res.Rescued))
	s.sweeps.WithLabelValues("requeued").Add(float64(res.Requeued))
	s.sweeps.WithLabelValues("errors").Add(float64(res.Errors))
	return nil
}

// RecordFleetStats publishes directory aggregates as gauges.
func (s *PromSink) RecordFleetStats(st coremetrics.FleetStats) error {
	s.fleet.WithLabelValues("volunteers").Set(float64(st.Volunteers))
	s.fleet.WithLabelValues("available").Set(float64(st.Available))
	s.fleet.WithLabelValues("mean_rating").Set(st.MeanRating)
	s.fleet.WithLabelValues("mean_response_seconds").Set(st.MeanResponseSeconds)
	return nil
}
