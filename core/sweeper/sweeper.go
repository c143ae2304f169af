// Package sweeper rescues stuck and abandoned work on a fixed period,
// independent of the request path. A failure on one session never aborts the
// sweep of the others.
package sweeper

import (
	"context"
	"time"

	"github.com/voluntr/engine/core/directory"
	"github.com/voluntr/engine/core/dispatch"
	"github.com/voluntr/engine/core/logger"
	"github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/session"
)

// Config holds the sweep cadence and the waiting-age cutoff.
type Config struct {
	Interval    time.Duration
	MaxWaitTime time.Duration
}

// DefaultConfig returns the standard sweep settings.
func DefaultConfig() Config {
	return Config{Interval: 60 * time.Second, MaxWaitTime: 5 * time.Minute}
}

// Sweeper periodically re-invokes the dispatcher for stale waiting sessions
// and requeues sessions whose volunteer went offline.
type Sweeper struct {
	cfg        Config
	sessions   *session.Manager
	dispatcher *dispatch.Dispatcher
	directory  *directory.Directory
	sink       metrics.Sink
	log        logger.Logger
}

// New creates a sweeper. The sink may be nil.
func New(cfg Config, mgr *session.Manager, disp *dispatch.Dispatcher, dir *directory.Directory, sink metrics.Sink, log logger.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxWaitTime <= 0 {
		cfg.MaxWaitTime = DefaultConfig().MaxWaitTime
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Sweeper{cfg: cfg, sessions: mgr, dispatcher: disp, directory: dir, sink: sink, log: log}
}

// Run executes sweeps on the configured interval until the context is
// canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs one pass: first rescue stale waiting sessions, then requeue
// orphaned assignments so the next pass can pick them up.
func (s *Sweeper) Sweep(ctx context.Context) metrics.SweepResult {
	res := metrics.SweepResult{Time: time.Now()}
	now := time.Now()

	for _, sess := range s.sessions.WaitingSessions() {
		if now.Sub(sess.StartTime) < s.cfg.MaxWaitTime {
			continue
		}
		rescued, err := s.dispatcher.Rematch(ctx, sess, escalate(sess.Request.Priority))
		if err != nil {
			res.Errors++
			s.log.Errorf("sweep rematch %s: %v", sess.SessionID, err)
			continue
		}
		if rescued {
			res.Rescued++
		}
	}

	for _, sess := range s.sessions.AssignedSessions() {
		addr := sess.VolunteerAddress()
		if addr == "" {
			continue
		}
		vol, ok := s.directory.Lookup(addr)
		if ok && vol.Status != model.VolunteerOffline {
			continue
		}
		if err := s.sessions.Requeue(ctx, sess.SessionID); err != nil {
			res.Errors++
			s.log.Errorf("sweep requeue %s: %v", sess.SessionID, err)
			continue
		}
		res.Requeued++
	}

	if sr, ok := s.sink.(metrics.SweepRecorder); ok {
		if err := sr.RecordSweep(res); err != nil {
			s.log.Errorf("sweep metrics error: %v", err)
		}
	}
	if res.Rescued > 0 || res.Requeued > 0 || res.Errors > 0 {
		s.log.Infof("sweep done: %d rescued, %d requeued, %d errors", res.Rescued, res.Requeued, res.Errors)
	}
	return res
}

// escalate lifts the effective priority of a stale waiting session to high.
// Urgent stays urgent.
func escalate(p model.Priority) model.Priority {
	if p.Rank() < model.PriorityHigh.Rank() {
		return model.PriorityHigh
	}
	return p
}
