package model

import "time"

// SessionStatus is the state of a support session in its lifecycle.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionAssigned  SessionStatus = "assigned"
	SessionActive    SessionStatus = "active"
	SessionResolved  SessionStatus = "resolved"
	SessionAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether no further lifecycle transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionResolved || s == SessionAbandoned
}

// Session records one request-to-resolution interaction. It is created by the
// dispatcher and mutated only through the session manager.
type Session struct {
	SessionID string
	Request   SupportRequest

	// Volunteer references the assigned agent, nil while the session waits
	// in the queue. The volunteer lifecycle is independent of the session.
	Volunteer *Volunteer

	Status         SessionStatus
	StartTime      time.Time
	AssignmentTime *time.Time
	ResolutionTime *time.Time

	// Messages is append-only.
	Messages []ChatMessage

	UserRating       *int
	UserFeedback     string
	ResolutionNotes  string
	PopPointsAwarded float64
}

// Rated reports whether the user already rated the session.
func (s *Session) Rated() bool { return s.UserRating != nil }

// VolunteerAddress returns the assigned volunteer address or "".
func (s *Session) VolunteerAddress() string {
	if s.Volunteer == nil {
		return ""
	}
	return s.Volunteer.Address
}

// Clone returns a deep copy safe to hand to readers outside the session lock.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Volunteer != nil {
		v := s.Volunteer.Clone()
		cp.Volunteer = &v
	}
	if s.AssignmentTime != nil {
		t := *s.AssignmentTime
		cp.AssignmentTime = &t
	}
	if s.ResolutionTime != nil {
		t := *s.ResolutionTime
		cp.ResolutionTime = &t
	}
	if s.UserRating != nil {
		r := *s.UserRating
		cp.UserRating = &r
	}
	cp.Messages = append([]ChatMessage(nil), s.Messages...)
	cp.Request.Metadata = cloneMetadata(s.Request.Metadata)
	return &cp
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
