// Package session owns the per-session state machine:
//
//	waiting --routed--> assigned --volunteer message--> active --resolve--> resolved --rate--> resolved (final)
//
// plus the timeout edge (waiting|assigned -> abandoned) and the offline edge
// (assigned|active -> waiting). All mutations on one session serialize on the
// session's entry lock; independent sessions proceed in parallel.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/events"
	"github.com/voluntr/engine/core/incentive"
	"github.com/voluntr/engine/core/logger"
	"github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
	"github.com/voluntr/engine/internal/eventbus"
)

// Config holds session lifecycle settings.
type Config struct {
	// Timeout abandons a waiting or assigned session with no activity.
	Timeout time.Duration
	// MaxMessageLength bounds chat message content.
	MaxMessageLength int
}

// DefaultConfig returns the standard lifecycle settings.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Minute, MaxMessageLength: 2000}
}

// LoadTracker adjusts the cached volunteer load. The directory implements it;
// the manager releases load on resolve, requeue and abandon through the same
// path the dispatcher uses to acquire it.
type LoadTracker interface {
	RecordLoadDelta(address, sessionID string, delta int)
}

type entry struct {
	mu       sync.Mutex
	sess     *model.Session
	timer    *time.Timer
	timerGen int
}

// Manager is the single owner of live session state.
type Manager struct {
	cfg     Config
	store   store.Store
	tracker LoadTracker
	calc    *incentive.Calculator
	bus     *eventbus.Bus[events.Event]
	sink    metrics.Sink
	log     logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewManager creates a session manager.
func NewManager(cfg Config, st store.Store, tracker LoadTracker, calc *incentive.Calculator, bus *eventbus.Bus[events.Event], sink metrics.Sink, log logger.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultConfig().MaxMessageLength
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{
		cfg:     cfg,
		store:   st,
		tracker: tracker,
		calc:    calc,
		bus:     bus,
		sink:    sink,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// CreateSession builds and persists a new session for the request. With a
// volunteer the session starts assigned, otherwise it enters the waiting
// queue. The request's initial message becomes the first transcript entry.
func (m *Manager) CreateSession(ctx context.Context, req model.SupportRequest, vol *model.Volunteer) (*model.Session, error) {
	return m.CreateSessionWithID(ctx, uuid.NewString(), req, vol)
}

// CreateSessionWithID creates the session under a caller-chosen id. The
// dispatcher needs the id ahead of the store write so it can reserve
// volunteer capacity under it first.
func (m *Manager) CreateSessionWithID(ctx context.Context, sessionID string, req model.SupportRequest, vol *model.Volunteer) (*model.Session, error) {
	if req.InitialMessage == "" {
		return nil, errs.Validationf("initial message is required")
	}
	if len(req.InitialMessage) > m.cfg.MaxMessageLength {
		return nil, errs.Validationf("initial message exceeds %d characters", m.cfg.MaxMessageLength)
	}

	now := time.Now()
	sess := &model.Session{
		SessionID: sessionID,
		Request:   req,
		Status:    model.SessionWaiting,
		StartTime: now,
		Messages: []model.ChatMessage{{
			MessageID:     uuid.NewString(),
			SenderAddress: req.UserAddress,
			Content:       req.InitialMessage,
			Timestamp:     now,
			Type:          model.MessageText,
		}},
	}
	if vol != nil {
		v := vol.Clone()
		sess.Volunteer = &v
		sess.Status = model.SessionAssigned
		sess.AssignmentTime = &now
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	e := &entry{sess: sess}
	m.mu.Lock()
	m.entries[sess.SessionID] = e
	m.mu.Unlock()

	e.mu.Lock()
	m.resetTimerLocked(e, sess.SessionID)
	e.mu.Unlock()

	return sess.Clone(), nil
}

// Get returns a copy of the session.
func (m *Manager) Get(sessionID string) (*model.Session, error) {
	e := m.lookup(sessionID)
	if e == nil {
		return nil, errs.NotFound("session", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

// WaitingSessions returns copies of all waiting sessions ordered by priority
// descending, then start time ascending.
func (m *Manager) WaitingSessions() []*model.Session {
	out := m.collect(func(s *model.Session) bool { return s.Status == model.SessionWaiting })
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Request.Priority.Rank(), out[j].Request.Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// AssignedSessions returns copies of all assigned or active sessions.
func (m *Manager) AssignedSessions() []*model.Session {
	return m.collect(func(s *model.Session) bool {
		return s.Status == model.SessionAssigned || s.Status == model.SessionActive
	})
}

// Restore loads waiting and assigned sessions from the store into the active
// cache after a restart. Load counts are not re-recorded: the directory
// snapshot from the same store already reflects them.
func (m *Manager) Restore(ctx context.Context, volunteers []model.Volunteer) error {
	waiting, err := m.store.QueryWaitingSessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range waiting {
		m.adopt(s)
	}
	for _, v := range volunteers {
		assigned, err := m.store.QueryAssignedSessionsForVolunteer(ctx, v.Address)
		if err != nil {
			m.log.Errorf("restore sessions for %s: %v", v.Address, err)
			continue
		}
		for _, s := range assigned {
			m.adopt(s)
		}
	}
	return nil
}

// Close stops every inactivity timer.
func (m *Manager) Close() {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()
	for _, e := range entries {
		e.mu.Lock()
		m.cancelTimerLocked(e)
		e.mu.Unlock()
	}
}

func (m *Manager) adopt(s *model.Session) {
	if s == nil || s.Status.Terminal() {
		return
	}
	m.mu.Lock()
	if _, ok := m.entries[s.SessionID]; ok {
		m.mu.Unlock()
		return
	}
	e := &entry{sess: s}
	m.entries[s.SessionID] = e
	m.mu.Unlock()

	e.mu.Lock()
	m.resetTimerLocked(e, s.SessionID)
	e.mu.Unlock()
}

func (m *Manager) lookup(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[id]
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// collect snapshots matching sessions. Entry locks are taken one at a time
// after releasing the map lock, so this never deadlocks against expiry.
func (m *Manager) collect(keep func(*model.Session) bool) []*model.Session {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var out []*model.Session
	for _, e := range entries {
		e.mu.Lock()
		if keep(e.sess) {
			out = append(out, e.sess.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
