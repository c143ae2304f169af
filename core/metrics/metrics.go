// Package metrics defines the sink interfaces used to record engine
// observability data. Sinks implement the base interface plus any of the
// optional capability interfaces; callers discover capabilities with type
// assertions.
package metrics

import (
	"time"

	"github.com/voluntr/engine/core/model"
)

// RouteResult captures one routing decision.
type RouteResult struct {
	RequestID        string
	SessionID        string
	VolunteerAddress string
	Priority         model.Priority
	Score            float64
	Assigned         bool
	Rescued          bool
	RouteTime        time.Time
}

// Sink records routing results.
type Sink interface {
	RecordRouteResult(results []RouteResult) error
}

// QueueDepthRecorder records the current waiting-queue depth.
type QueueDepthRecorder interface {
	RecordQueueDepth(depth int) error
}

// OutcomeEvent captures a terminal or rated session.
type OutcomeEvent struct {
	SessionID         string
	Status            model.SessionStatus
	Rating            int
	Points            float64
	ResolutionLatency time.Duration
	Messages          int
	Time              time.Time
}

// OutcomeRecorder records session outcomes.
type OutcomeRecorder interface {
	RecordSessionOutcome(ev OutcomeEvent) error
}

// SweepResult summarises one sweeper pass.
type SweepResult struct {
	Rescued  int
	Requeued int
	Errors   int
	Time     time.Time
}

// SweepRecorder records sweeper passes.
type SweepRecorder interface {
	RecordSweep(res SweepResult) error
}

// FleetStats is an aggregate snapshot of the volunteer directory.
type FleetStats struct {
	Volunteers          int
	Available           int
	MeanRating          float64
	StdDevRating        float64
	MeanResponseSeconds float64
	Time                time.Time
}

// FleetStatsRecorder records directory aggregates on refresh.
type FleetStatsRecorder interface {
	RecordFleetStats(st FleetStats) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRouteResult([]RouteResult) error   { return nil }
func (NopSink) RecordQueueDepth(int) error              { return nil }
func (NopSink) RecordSessionOutcome(OutcomeEvent) error { return nil }
func (NopSink) RecordSweep(SweepResult) error           { return nil }
func (NopSink) RecordFleetStats(FleetStats) error       { return nil }
