// Package store declares the persistence boundary of the engine. The engine
// is the single authoritative in-memory instance; the store is used for
// recovery and durable history, never for runtime locking.
package store

import (
	"context"
	"time"

	"github.com/voluntr/engine/core/model"
)

// SessionFields carries the optional columns touched by a status update.
// Nil fields are left untouched by the store.
type SessionFields struct {
	VolunteerAddress *string
	AssignmentTime   *time.Time
	ResolutionTime   *time.Time
	UserRating       *int
	UserFeedback     *string
	ResolutionNotes  *string
	PopPointsAwarded *float64

	// ClearAssignmentTime nulls the assignment timestamp; a nil
	// AssignmentTime alone leaves it untouched.
	ClearAssignmentTime bool
}

// Store is the persistent backing of volunteers, sessions and messages.
// Implementations must be safe for concurrent use. Failures are wrapped as
// errs.TransientError by implementations.
type Store interface {
	LoadVolunteers(ctx context.Context) ([]model.Volunteer, error)
	SaveSession(ctx context.Context, s *model.Session) error
	AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, fields SessionFields) error
	QueryWaitingSessions(ctx context.Context) ([]*model.Session, error)
	QueryAssignedSessionsForVolunteer(ctx context.Context, address string) ([]*model.Session, error)
}

// StrPtr is a convenience for building SessionFields.
func StrPtr(s string) *string { return &s }

// TimePtr is a convenience for building SessionFields.
func TimePtr(t time.Time) *time.Time { return &t }

// IntPtr is a convenience for building SessionFields.
func IntPtr(i int) *int { return &i }

// FloatPtr is a convenience for building SessionFields.
func FloatPtr(f float64) *float64 { return &f }
