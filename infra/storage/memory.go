// Package storage provides the persistent-store implementations: a
// Postgres-backed store for deployments and an in-memory store for tests and
// single-node development.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
)

// MemoryStore keeps volunteers and sessions in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	volunteers map[string]model.Volunteer
	sessions   map[string]*model.Session

	// Fail, when set, is consulted before every operation with the
	// operation name and lets tests inject store failures.
	Fail func(op string) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		volunteers: make(map[string]model.Volunteer),
		sessions:   make(map[string]*model.Session),
	}
}

// SetVolunteer inserts or replaces a volunteer record.
func (m *MemoryStore) SetVolunteer(v model.Volunteer) {
	m.mu.Lock()
	m.volunteers[v.Address] = v.Clone()
	m.mu.Unlock()
}

// SetVolunteerStatus flips the status of a stored volunteer.
func (m *MemoryStore) SetVolunteerStatus(address string, status model.VolunteerStatus) {
	m.mu.Lock()
	if v, ok := m.volunteers[address]; ok {
		v.Status = status
		m.volunteers[address] = v
	}
	m.mu.Unlock()
}

func (m *MemoryStore) fail(op string) error {
	if m.Fail != nil {
		return m.Fail(op)
	}
	return nil
}

// LoadVolunteers returns all volunteers with their active session ids
// derived from the stored sessions.
func (m *MemoryStore) LoadVolunteers(ctx context.Context) ([]model.Volunteer, error) {
	if err := m.fail("load_volunteers"); err != nil {
		return nil, errs.Transient("load volunteers", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make(map[string][]string)
	for _, s := range m.sessions {
		if s.Volunteer == nil {
			continue
		}
		if s.Status == model.SessionAssigned || s.Status == model.SessionActive {
			addr := s.Volunteer.Address
			active[addr] = append(active[addr], s.SessionID)
		}
	}

	out := make([]model.Volunteer, 0, len(m.volunteers))
	for addr, v := range m.volunteers {
		cp := v.Clone()
		for _, sid := range active[addr] {
			if !contains(cp.ActiveSessions, sid) {
				cp.ActiveSessions = append(cp.ActiveSessions, sid)
			}
		}
		sort.Strings(cp.ActiveSessions)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// SaveSession stores a copy of the session.
func (m *MemoryStore) SaveSession(ctx context.Context, s *model.Session) error {
	if err := m.fail("save_session"); err != nil {
		return errs.Transient("save session", err)
	}
	m.mu.Lock()
	m.sessions[s.SessionID] = s.Clone()
	m.mu.Unlock()
	return nil
}

// AppendMessage appends to the stored transcript.
func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error {
	if err := m.fail("append_message"); err != nil {
		return errs.Transient("append message", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return errs.Transient("append message", fmt.Errorf("session %s not stored", sessionID))
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

// UpdateSessionStatus applies the status and any non-nil fields.
func (m *MemoryStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, fields store.SessionFields) error {
	if err := m.fail("update_session_status"); err != nil {
		return errs.Transient("update session status", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return errs.Transient("update session status", fmt.Errorf("session %s not stored", sessionID))
	}
	s.Status = status
	if fields.VolunteerAddress != nil {
		if *fields.VolunteerAddress == "" {
			s.Volunteer = nil
		} else if v, known := m.volunteers[*fields.VolunteerAddress]; known {
			cp := v.Clone()
			s.Volunteer = &cp
		} else {
			s.Volunteer = &model.Volunteer{Address: *fields.VolunteerAddress}
		}
	}
	if fields.ClearAssignmentTime {
		s.AssignmentTime = nil
	} else if fields.AssignmentTime != nil {
		t := *fields.AssignmentTime
		s.AssignmentTime = &t
	}
	if fields.ResolutionTime != nil {
		t := *fields.ResolutionTime
		s.ResolutionTime = &t
	}
	if fields.UserRating != nil {
		r := *fields.UserRating
		s.UserRating = &r
	}
	if fields.UserFeedback != nil {
		s.UserFeedback = *fields.UserFeedback
	}
	if fields.ResolutionNotes != nil {
		s.ResolutionNotes = *fields.ResolutionNotes
	}
	if fields.PopPointsAwarded != nil {
		s.PopPointsAwarded = *fields.PopPointsAwarded
	}
	return nil
}

// QueryWaitingSessions returns waiting sessions ordered by priority
// descending, then start time ascending.
func (m *MemoryStore) QueryWaitingSessions(ctx context.Context) ([]*model.Session, error) {
	if err := m.fail("query_waiting"); err != nil {
		return nil, errs.Transient("query waiting sessions", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if s.Status == model.SessionWaiting {
			out = append(out, s.Clone())
		}
	}
	sortWaiting(out)
	return out, nil
}

// QueryAssignedSessionsForVolunteer returns the assigned or active sessions
// held by the given volunteer.
func (m *MemoryStore) QueryAssignedSessionsForVolunteer(ctx context.Context, address string) ([]*model.Session, error) {
	if err := m.fail("query_assigned"); err != nil {
		return nil, errs.Transient("query assigned sessions", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if s.Volunteer == nil || s.Volunteer.Address != address {
			continue
		}
		if s.Status == model.SessionAssigned || s.Status == model.SessionActive {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Session returns the stored copy of a session, for tests.
func (m *MemoryStore) Session(sessionID string) (*model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func sortWaiting(ss []*model.Session) {
	sort.Slice(ss, func(i, j int) bool {
		pi, pj := ss[i].Request.Priority.Rank(), ss[j].Request.Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return ss[i].StartTime.Before(ss[j].StartTime)
	})
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
