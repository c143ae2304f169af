// Package events defines the engine events published on the event bus.
// Observers (notification fan-out, audit, tests) subscribe to these instead
// of hooking into the dispatcher directly, which keeps delivery order
// testable.
package events

import "github.com/voluntr/engine/core/model"

// Event is the union of engine events carried by the bus.
type Event interface{}

// AssignmentEvent fires when a request is routed to a volunteer, either on
// the request path or by a sweep rescue.
type AssignmentEvent struct {
	SessionID string
	Volunteer model.Volunteer
	Score     float64
	Rescued   bool
}

// QueuedEvent fires when no volunteer clears the acceptance threshold and
// the session enters the waiting queue.
type QueuedEvent struct {
	SessionID string
	Priority  model.Priority
}

// ResolutionEvent fires when the assigned volunteer resolves a session.
type ResolutionEvent struct {
	SessionID        string
	VolunteerAddress string
}

// RatingEvent fires when the user rates a resolved session.
type RatingEvent struct {
	SessionID string
	Rating    int
	Points    float64
}

// ReassignmentEvent fires when a session returns to the waiting queue
// because its volunteer went offline.
type ReassignmentEvent struct {
	SessionID        string
	VolunteerAddress string
}

// AbandonEvent fires when the inactivity timeout expires on a waiting or
// assigned session.
type AbandonEvent struct {
	SessionID string
}
