package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
)

func storedSession(id string, status model.SessionStatus, vol *model.Volunteer, p model.Priority, start time.Time) *model.Session {
	return &model.Session{
		SessionID: id,
		Status:    status,
		Volunteer: vol,
		StartTime: start,
		Request: model.SupportRequest{
			RequestID:      "req-" + id,
			UserAddress:    "user-1",
			Category:       model.CategoryGeneral,
			Priority:       p,
			InitialMessage: "help",
			Language:       "en",
			Timestamp:      start,
		},
	}
}

func TestLoadVolunteersDerivesActiveSessions(t *testing.T) {
	m := NewMemoryStore()
	vol := model.Volunteer{Address: "vol-a", Status: model.VolunteerAvailable, MaxConcurrentSessions: 3}
	m.SetVolunteer(vol)

	now := time.Now()
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s1", model.SessionAssigned, &vol, model.PriorityMedium, now)))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s2", model.SessionActive, &vol, model.PriorityMedium, now)))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s3", model.SessionResolved, &vol, model.PriorityMedium, now)))

	vols, err := m.LoadVolunteers(context.Background())
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.ElementsMatch(t, []string{"s1", "s2"}, vols[0].ActiveSessions)
}

func TestUpdateSessionStatusFields(t *testing.T) {
	m := NewMemoryStore()
	vol := model.Volunteer{Address: "vol-a", Status: model.VolunteerAvailable, MaxConcurrentSessions: 3}
	m.SetVolunteer(vol)
	now := time.Now()
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s1", model.SessionWaiting, nil, model.PriorityMedium, now)))

	addr := "vol-a"
	err := m.UpdateSessionStatus(context.Background(), "s1", model.SessionAssigned, store.SessionFields{
		VolunteerAddress: &addr,
		AssignmentTime:   &now,
	})
	require.NoError(t, err)
	got, ok := m.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionAssigned, got.Status)
	require.NotNil(t, got.Volunteer)
	assert.Equal(t, "vol-a", got.Volunteer.Address)

	// Clearing the volunteer with an empty address requeues the session;
	// ClearAssignmentTime drops the stale timestamp with it.
	err = m.UpdateSessionStatus(context.Background(), "s1", model.SessionWaiting, store.SessionFields{
		VolunteerAddress:    store.StrPtr(""),
		ClearAssignmentTime: true,
	})
	require.NoError(t, err)
	got, _ = m.Session("s1")
	assert.Nil(t, got.Volunteer)
	assert.Nil(t, got.AssignmentTime)

	rating := 5
	feedback := "great"
	points := 4.5
	err = m.UpdateSessionStatus(context.Background(), "s1", model.SessionResolved, store.SessionFields{
		ResolutionTime:   &now,
		UserRating:       &rating,
		UserFeedback:     &feedback,
		PopPointsAwarded: &points,
	})
	require.NoError(t, err)
	got, _ = m.Session("s1")
	require.NotNil(t, got.UserRating)
	assert.Equal(t, 5, *got.UserRating)
	assert.Equal(t, "great", got.UserFeedback)
	assert.Equal(t, 4.5, got.PopPointsAwarded)
	assert.NotNil(t, got.ResolutionTime)
}

func TestUpdateUnknownSession(t *testing.T) {
	m := NewMemoryStore()
	err := m.UpdateSessionStatus(context.Background(), "nope", model.SessionResolved, store.SessionFields{})
	assert.True(t, errs.IsTransient(err))
	err = m.AppendMessage(context.Background(), "nope", model.ChatMessage{Content: "hi"})
	assert.True(t, errs.IsTransient(err))
}

func TestQueryWaitingSessionsOrder(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now()
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s-low", model.SessionWaiting, nil, model.PriorityLow, base)))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s-urgent", model.SessionWaiting, nil, model.PriorityUrgent, base.Add(2*time.Second))))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s-med-old", model.SessionWaiting, nil, model.PriorityMedium, base)))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s-med-new", model.SessionWaiting, nil, model.PriorityMedium, base.Add(time.Second))))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s-done", model.SessionResolved, nil, model.PriorityUrgent, base)))

	got, err := m.QueryWaitingSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "s-urgent", got[0].SessionID)
	assert.Equal(t, "s-med-old", got[1].SessionID)
	assert.Equal(t, "s-med-new", got[2].SessionID)
	assert.Equal(t, "s-low", got[3].SessionID)
}

func TestQueryAssignedSessionsForVolunteer(t *testing.T) {
	m := NewMemoryStore()
	volA := model.Volunteer{Address: "vol-a", MaxConcurrentSessions: 3}
	volB := model.Volunteer{Address: "vol-b", MaxConcurrentSessions: 3}
	now := time.Now()
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s1", model.SessionAssigned, &volA, model.PriorityMedium, now)))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s2", model.SessionActive, &volA, model.PriorityMedium, now.Add(time.Second))))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s3", model.SessionAssigned, &volB, model.PriorityMedium, now)))
	require.NoError(t, m.SaveSession(context.Background(), storedSession("s4", model.SessionResolved, &volA, model.PriorityMedium, now)))

	got, err := m.QueryAssignedSessionsForVolunteer(context.Background(), "vol-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "s2", got[1].SessionID)
}

func TestFailInjection(t *testing.T) {
	m := NewMemoryStore()
	m.Fail = func(op string) error {
		if op == "save_session" {
			return errors.New("disk full")
		}
		return nil
	}
	err := m.SaveSession(context.Background(), storedSession("s1", model.SessionWaiting, nil, model.PriorityLow, time.Now()))
	assert.True(t, errs.IsTransient(err))

	_, err = m.LoadVolunteers(context.Background())
	assert.NoError(t, err)
}

func TestSaveSessionStoresCopy(t *testing.T) {
	m := NewMemoryStore()
	s := storedSession("s1", model.SessionWaiting, nil, model.PriorityLow, time.Now())
	require.NoError(t, m.SaveSession(context.Background(), s))

	s.Status = model.SessionResolved
	got, ok := m.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionWaiting, got.Status)
}
