package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/events"
	"github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
)

// SendMessage appends a chat message to the session transcript. The first
// message from the assigned volunteer activates the session. Every message
// resets the inactivity timer.
func (m *Manager) SendMessage(ctx context.Context, sessionID, sender, content string, mtype model.MessageType, att *model.Attachment) (*model.ChatMessage, error) {
	e := m.lookup(sessionID)
	if e == nil {
		return nil, errs.NotFound("session", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if sess.Status.Terminal() {
		return nil, errs.Statef("session %s is %s", sessionID, sess.Status)
	}
	fromUser := sender == sess.Request.UserAddress
	fromVolunteer := sess.Volunteer != nil && sender == sess.Volunteer.Address
	if !fromUser && !fromVolunteer {
		return nil, errs.Permission(sender, "message session "+sessionID)
	}
	if content == "" {
		return nil, errs.Validationf("message content is required")
	}
	if len(content) > m.cfg.MaxMessageLength {
		return nil, errs.Validationf("message exceeds %d characters", m.cfg.MaxMessageLength)
	}
	if !mtype.Valid() {
		return nil, errs.Validationf("unknown message type %q", mtype)
	}

	msg := model.ChatMessage{
		MessageID:     uuid.NewString(),
		SenderAddress: sender,
		Content:       content,
		Timestamp:     time.Now(),
		Type:          mtype,
		Attachment:    att,
	}
	if err := m.store.AppendMessage(ctx, sessionID, msg); err != nil {
		return nil, err
	}
	sess.Messages = append(sess.Messages, msg)

	if sess.Status == model.SessionAssigned && fromVolunteer {
		if err := m.store.UpdateSessionStatus(ctx, sessionID, model.SessionActive, store.SessionFields{}); err != nil {
			return nil, err
		}
		sess.Status = model.SessionActive
	}

	m.resetTimerLocked(e, sessionID)
	return &msg, nil
}

// ResolveSession marks the session resolved. Only the assigned volunteer may
// resolve, and only once.
func (m *Manager) ResolveSession(ctx context.Context, sessionID, volunteerAddress, notes string) error {
	e := m.lookup(sessionID)
	if e == nil {
		return errs.NotFound("session", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if sess.Volunteer == nil || sess.Volunteer.Address != volunteerAddress {
		return errs.Permission(volunteerAddress, "resolve session "+sessionID)
	}
	switch sess.Status {
	case model.SessionResolved:
		return errs.Statef("session %s already resolved", sessionID)
	case model.SessionAbandoned:
		return errs.Statef("session %s is abandoned", sessionID)
	}

	now := time.Now()
	fields := store.SessionFields{ResolutionTime: store.TimePtr(now)}
	if notes != "" {
		fields.ResolutionNotes = store.StrPtr(notes)
	}
	if err := m.store.UpdateSessionStatus(ctx, sessionID, model.SessionResolved, fields); err != nil {
		return err
	}

	sess.Status = model.SessionResolved
	sess.ResolutionTime = &now
	sess.ResolutionNotes = notes
	// The resolved session stays cached for one timeout so the user can
	// still rate it; the timer then evicts it instead of abandoning it.
	m.resetTimerLocked(e, sessionID)

	if m.tracker != nil {
		m.tracker.RecordLoadDelta(volunteerAddress, sessionID, -1)
	}
	m.publish(events.ResolutionEvent{SessionID: sessionID, VolunteerAddress: volunteerAddress})
	return nil
}

// RateSession stores the user rating for a resolved session and awards PoP
// points to the assigned volunteer. A second rating is rejected with a
// StateError regardless of its value.
func (m *Manager) RateSession(ctx context.Context, sessionID string, rating int, feedback string) (float64, error) {
	if rating < 1 || rating > 5 {
		return 0, errs.Validationf("rating %d outside [1,5]", rating)
	}
	e := m.lookup(sessionID)
	if e == nil {
		return 0, errs.NotFound("session", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if sess.Status != model.SessionResolved {
		return 0, errs.Statef("session %s is not resolved", sessionID)
	}
	if sess.Rated() {
		return 0, errs.Statef("session %s already rated", sessionID)
	}

	var points float64
	if sess.Volunteer != nil {
		points = m.calc.CalculatePoints(sess, rating)
	}
	fields := store.SessionFields{UserRating: store.IntPtr(rating), UserFeedback: store.StrPtr(feedback)}
	if sess.Volunteer != nil {
		fields.PopPointsAwarded = store.FloatPtr(points)
	}
	if err := m.store.UpdateSessionStatus(ctx, sessionID, model.SessionResolved, fields); err != nil {
		return 0, err
	}

	r := rating
	sess.UserRating = &r
	sess.UserFeedback = feedback
	sess.PopPointsAwarded = points
	// Rated sessions are immutable; keep the entry around one more timeout
	// so a duplicate rating still gets the already-rated answer, then evict.
	m.resetTimerLocked(e, sessionID)

	if sess.Volunteer != nil {
		m.calc.Credit(ctx, sess.Volunteer.Address, points)
	}
	m.publish(events.RatingEvent{SessionID: sessionID, Rating: rating, Points: points})
	m.recordOutcome(sess)
	return points, nil
}

// AssignWaiting transitions a waiting session to assigned in place. The
// sweeper uses it to rescue stale sessions without minting a new session id.
func (m *Manager) AssignWaiting(ctx context.Context, sessionID string, vol model.Volunteer) error {
	e := m.lookup(sessionID)
	if e == nil {
		return errs.NotFound("session", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if sess.Status != model.SessionWaiting {
		return errs.Statef("session %s is not waiting", sessionID)
	}

	now := time.Now()
	fields := store.SessionFields{VolunteerAddress: store.StrPtr(vol.Address), AssignmentTime: store.TimePtr(now)}
	if err := m.store.UpdateSessionStatus(ctx, sessionID, model.SessionAssigned, fields); err != nil {
		return err
	}

	v := vol.Clone()
	sess.Volunteer = &v
	sess.AssignmentTime = &now
	sess.Status = model.SessionAssigned
	m.resetTimerLocked(e, sessionID)
	return nil
}

// Requeue returns an assigned or active session to the waiting queue after
// its volunteer went offline, releasing the volunteer's load count.
func (m *Manager) Requeue(ctx context.Context, sessionID string) error {
	e := m.lookup(sessionID)
	if e == nil {
		return errs.NotFound("session", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if sess.Status != model.SessionAssigned && sess.Status != model.SessionActive {
		return errs.Statef("session %s is not assigned", sessionID)
	}
	volAddr := sess.VolunteerAddress()

	fields := store.SessionFields{VolunteerAddress: store.StrPtr(""), ClearAssignmentTime: true}
	if err := m.store.UpdateSessionStatus(ctx, sessionID, model.SessionWaiting, fields); err != nil {
		return err
	}

	sess.Volunteer = nil
	sess.AssignmentTime = nil
	sess.Status = model.SessionWaiting
	m.resetTimerLocked(e, sessionID)

	if m.tracker != nil && volAddr != "" {
		m.tracker.RecordLoadDelta(volAddr, sessionID, -1)
	}
	m.publish(events.ReassignmentEvent{SessionID: sessionID, VolunteerAddress: volAddr})
	return nil
}

func (m *Manager) recordOutcome(sess *model.Session) {
	or, ok := m.sink.(metrics.OutcomeRecorder)
	if !ok {
		return
	}
	ev := metrics.OutcomeEvent{
		SessionID: sess.SessionID,
		Status:    sess.Status,
		Points:    sess.PopPointsAwarded,
		Messages:  len(sess.Messages),
		Time:      time.Now(),
	}
	if sess.UserRating != nil {
		ev.Rating = *sess.UserRating
	}
	if sess.AssignmentTime != nil && sess.ResolutionTime != nil {
		ev.ResolutionLatency = sess.ResolutionTime.Sub(*sess.AssignmentTime)
	}
	if err := or.RecordSessionOutcome(ev); err != nil {
		m.log.Errorf("session outcome metrics error: %v", err)
	}
}
