package session

import (
	"context"
	"time"

	"github.com/voluntr/engine/core/events"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
)

// resetTimerLocked cancels and reschedules the inactivity timer. The
// generation counter makes a stale timer firing after a reset a no-op, so
// there is no window where the old and new timer can both take effect.
// Callers hold e.mu.
func (m *Manager) resetTimerLocked(e *entry, sessionID string) {
	e.timerGen++
	gen := e.timerGen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(m.cfg.Timeout, func() { m.expire(sessionID, gen) })
}

// cancelTimerLocked stops the timer for good. Callers hold e.mu.
func (m *Manager) cancelTimerLocked(e *entry) {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// expire runs when a session's inactivity timer fires. Waiting and assigned
// sessions are abandoned; resolved sessions have passed their rating horizon
// and are dropped from the cache with the store record untouched. Anything
// else means activity won the race.
func (m *Manager) expire(sessionID string, gen int) {
	e := m.lookup(sessionID)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.timerGen != gen {
		e.mu.Unlock()
		return
	}
	sess := e.sess
	if sess.Status == model.SessionResolved {
		e.timer = nil
		e.mu.Unlock()
		m.remove(sessionID)
		m.log.Debugf("resolved session %s evicted from the cache", sessionID)
		return
	}
	if sess.Status != model.SessionWaiting && sess.Status != model.SessionAssigned {
		e.mu.Unlock()
		return
	}
	volAddr := sess.VolunteerAddress()

	// No caller to surface a store failure to; the in-memory transition
	// still happens so the engine stays consistent with itself.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := m.store.UpdateSessionStatus(ctx, sessionID, model.SessionAbandoned, store.SessionFields{}); err != nil {
		m.log.Errorf("persist abandon for %s: %v", sessionID, err)
	}
	cancel()

	sess.Status = model.SessionAbandoned
	e.timer = nil
	e.mu.Unlock()

	if m.tracker != nil && volAddr != "" {
		m.tracker.RecordLoadDelta(volAddr, sessionID, -1)
	}
	m.remove(sessionID)
	m.publish(events.AbandonEvent{SessionID: sessionID})
	m.log.Infof("session %s abandoned after %s of inactivity", sessionID, m.cfg.Timeout)
}
