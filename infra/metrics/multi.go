package metrics

import coremetrics "github.com/voluntr/engine/core/metrics"

// MultiSink fans engine events out to multiple sinks. Capability interfaces
// are forwarded only to sinks that implement them.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRouteResult forwards to all sinks, returning the first error.
func (m *MultiSink) RecordRouteResult(res []coremetrics.RouteResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordRouteResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordQueueDepth forwards the queue depth.
func (m *MultiSink) RecordQueueDepth(depth int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.QueueDepthRecorder); ok {
			if err := rec.RecordQueueDepth(depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSessionOutcome forwards session outcomes.
func (m *MultiSink) RecordSessionOutcome(ev coremetrics.OutcomeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.OutcomeRecorder); ok {
			if err := rec.RecordSessionOutcome(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSweep forwards sweep summaries.
func (m *MultiSink) RecordSweep(res coremetrics.SweepResult) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SweepRecorder); ok {
			if err := rec.RecordSweep(res); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetStats forwards directory aggregates.
func (m *MultiSink) RecordFleetStats(st coremetrics.FleetStats) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FleetStatsRecorder); ok {
			if err := rec.RecordFleetStats(st); err != nil {
				return err
			}
		}
	}
	return nil
}
