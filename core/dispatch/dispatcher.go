// Package dispatch routes incoming support requests to the best-scoring
// available volunteer, or enqueues them when nobody clears the acceptance
// threshold. Routing never blocks or retries: an empty directory is a
// normal, non-error outcome.
package dispatch

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/voluntr/engine/core/directory"
	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/events"
	"github.com/voluntr/engine/core/logger"
	"github.com/voluntr/engine/core/match"
	"github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/notify"
	"github.com/voluntr/engine/core/session"
	"github.com/voluntr/engine/internal/eventbus"
)

// Dispatcher matches requests against the volunteer directory.
type Dispatcher struct {
	directory *directory.Directory
	scorer    match.Scorer
	sessions  *session.Manager
	hook      notify.Hook
	bus       *eventbus.Bus[events.Event]
	sink      metrics.Sink
	log       logger.Logger
	validate  *validator.Validate
}

// NewDispatcher creates a dispatcher. The hook and sink may be nil.
func NewDispatcher(dir *directory.Directory, scorer match.Scorer, mgr *session.Manager, hook notify.Hook, bus *eventbus.Bus[events.Event], sink metrics.Sink, log logger.Logger) *Dispatcher {
	if hook == nil {
		hook = notify.NopHook{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Dispatcher{
		directory: dir,
		scorer:    scorer,
		sessions:  mgr,
		hook:      hook,
		bus:       bus,
		sink:      sink,
		log:       log,
		validate:  validator.New(),
	}
}

// RouteRequest scores every available volunteer for the request and creates
// the session, assigned to the winner or waiting in the queue.
func (d *Dispatcher) RouteRequest(ctx context.Context, req model.SupportRequest) (*model.Session, error) {
	start := time.Now()
	if err := d.validate.Struct(req); err != nil {
		return nil, errs.Validationf("invalid request: %v", err)
	}
	if !req.Priority.Valid() {
		return nil, errs.Validationf("unknown priority %q", req.Priority)
	}

	candidates := d.directory.GetAvailable()
	for {
		best, score, found := d.selectVolunteer(candidates, req)
		if !found {
			sess, err := d.sessions.CreateSession(ctx, req, nil)
			if err != nil {
				return nil, err
			}
			sessionsRouted.WithLabelValues(string(req.Priority), "queued").Inc()
			routeLatency.Observe(time.Since(start).Seconds())
			d.updateQueueDepth()
			d.publish(events.QueuedEvent{SessionID: sess.SessionID, Priority: req.Priority})
			d.recordRoute(req, sess.SessionID, "", 0, false, false)
			d.log.Infof("request %s queued, no volunteer above threshold", req.RequestID)
			return sess, nil
		}

		// Capacity is claimed before the session is persisted; a concurrent
		// route that wins the reservation pushes this one to the runner-up.
		sessionID := uuid.NewString()
		if !d.directory.TryReserve(best.Address, sessionID) {
			candidates = withoutCandidate(candidates, best.Address)
			continue
		}

		sess, err := d.sessions.CreateSessionWithID(ctx, sessionID, req, &best)
		if err != nil {
			d.directory.Release(best.Address, sessionID)
			return nil, err
		}
		d.notifyAsync(best, sess)

		sessionsRouted.WithLabelValues(string(req.Priority), "assigned").Inc()
		routeLatency.Observe(time.Since(start).Seconds())
		d.publish(events.AssignmentEvent{SessionID: sess.SessionID, Volunteer: best, Score: score})
		d.recordRoute(req, sess.SessionID, best.Address, score, true, false)
		d.log.Infof("request %s assigned to %s (score %.3f)", req.RequestID, best.Address, score)
		return sess, nil
	}
}

// Rematch retries matching for an existing waiting session using an
// escalated effective priority. On success the session transitions to
// assigned in place; no new session is created. The boolean result reports
// whether a volunteer was found.
func (d *Dispatcher) Rematch(ctx context.Context, sess *model.Session, effective model.Priority) (bool, error) {
	if sess.Status != model.SessionWaiting {
		return false, nil
	}
	req := sess.Request
	req.Priority = effective

	best, score, found := d.selectVolunteer(d.directory.GetAvailable(), req)
	if !found {
		return false, nil
	}
	if !d.directory.TryReserve(best.Address, sess.SessionID) {
		return false, nil
	}
	if err := d.sessions.AssignWaiting(ctx, sess.SessionID, best); err != nil {
		d.directory.Release(best.Address, sess.SessionID)
		// The session may have been assigned or abandoned since the
		// sweeper snapshotted it; that is not a sweep failure.
		if errs.IsState(err) || errs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if updated, err := d.sessions.Get(sess.SessionID); err == nil {
		d.notifyAsync(best, updated)
	}
	sessionsRouted.WithLabelValues(string(req.Priority), "rescued").Inc()
	d.updateQueueDepth()
	d.publish(events.AssignmentEvent{SessionID: sess.SessionID, Volunteer: best, Score: score, Rescued: true})
	d.recordRoute(req, sess.SessionID, best.Address, score, true, true)
	d.log.Infof("waiting session %s rescued by %s (score %.3f)", sess.SessionID, best.Address, score)
	return true, nil
}

// selectVolunteer returns the acceptable candidate with the highest score.
// Ties break on lowest current load, then lexicographic address, so routing
// is deterministic.
func (d *Dispatcher) selectVolunteer(candidates []model.Volunteer, req model.SupportRequest) (model.Volunteer, float64, bool) {
	var (
		best      model.Volunteer
		bestScore float64
		found     bool
	)
	for _, v := range candidates {
		s := d.scorer.Score(v, req)
		if !d.scorer.Acceptable(s) {
			continue
		}
		if !found || betterCandidate(v, s, best, bestScore) {
			best, bestScore, found = v, s, true
		}
	}
	return best, bestScore, found
}

func withoutCandidate(vols []model.Volunteer, address string) []model.Volunteer {
	out := vols[:0]
	for _, v := range vols {
		if v.Address != address {
			out = append(out, v)
		}
	}
	return out
}

func betterCandidate(v model.Volunteer, score float64, cur model.Volunteer, curScore float64) bool {
	if score != curScore {
		return score > curScore
	}
	if v.Load() != cur.Load() {
		return v.Load() < cur.Load()
	}
	return v.Address < cur.Address
}

func (d *Dispatcher) notifyAsync(v model.Volunteer, s *model.Session) {
	notifications.Inc()
	go d.hook.NotifyVolunteer(v, s)
}

func (d *Dispatcher) updateQueueDepth() {
	depth := len(d.sessions.WaitingSessions())
	waitingDepth.Set(float64(depth))
	if qr, ok := d.sink.(metrics.QueueDepthRecorder); ok {
		if err := qr.RecordQueueDepth(depth); err != nil {
			d.log.Errorf("queue depth metrics error: %v", err)
		}
	}
}

func (d *Dispatcher) recordRoute(req model.SupportRequest, sessionID, volunteer string, score float64, assigned, rescued bool) {
	res := metrics.RouteResult{
		RequestID:        req.RequestID,
		SessionID:        sessionID,
		VolunteerAddress: volunteer,
		Priority:         req.Priority,
		Score:            score,
		Assigned:         assigned,
		Rescued:          rescued,
		RouteTime:        time.Now(),
	}
	if err := d.sink.RecordRouteResult([]metrics.RouteResult{res}); err != nil {
		d.log.Errorf("route metrics error: %v", err)
	}
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}
