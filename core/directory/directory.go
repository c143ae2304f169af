// Package directory maintains a read-optimized snapshot of volunteer
// availability. The snapshot is rebuilt from the persistent store at most
// once per TTL and published by atomic pointer swap, so concurrent routers
// never observe a partially rebuilt or cleared directory.
package directory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/voluntr/engine/core/logger"
	"github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/core/store"
)

// DefaultTTL bounds how often the snapshot is rebuilt from the store.
const DefaultTTL = 60 * time.Second

type snapshot struct {
	volunteers map[string]model.Volunteer
	takenAt    time.Time
}

// Directory caches volunteer records between store refreshes. Load changes
// recorded through RecordLoadDelta are applied as an overlay on top of the
// snapshot so rapid successive routes cannot over-assign a volunteer before
// the next refresh reconciles with the store.
type Directory struct {
	store store.Store
	log   logger.Logger
	sink  metrics.Sink
	ttl   time.Duration

	snap atomic.Pointer[snapshot]

	mu          sync.Mutex // serializes refreshes, guards overlay
	overlay     map[string]map[string]int
	lastRefresh time.Time
}

// New creates a directory with an empty snapshot. Call Refresh before the
// first routing decision.
func New(st store.Store, ttl time.Duration, sink metrics.Sink, log logger.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	d := &Directory{
		store:   st,
		log:     log,
		sink:    sink,
		ttl:     ttl,
		overlay: make(map[string]map[string]int),
	}
	d.snap.Store(&snapshot{volunteers: map[string]model.Volunteer{}})
	return d
}

// Refresh rebuilds the snapshot unless one was taken within the TTL.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	if time.Since(d.lastRefresh) < d.ttl {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	return d.ForceRefresh(ctx)
}

// ForceRefresh rebuilds the snapshot regardless of the TTL. The overlay is
// reset afterwards: assignments made since the last refresh were persisted
// before their deltas were recorded, so the fresh store read covers them.
func (d *Directory) ForceRefresh(ctx context.Context) error {
	vols, err := d.store.LoadVolunteers(ctx)
	if err != nil {
		return err
	}
	m := make(map[string]model.Volunteer, len(vols))
	for _, v := range vols {
		if err := v.Validate(); err != nil {
			d.log.Warnf("skipping volunteer %s: %v", v.Address, err)
			continue
		}
		m[v.Address] = v.Clone()
	}
	next := &snapshot{volunteers: m, takenAt: time.Now()}

	d.mu.Lock()
	d.snap.Store(next)
	d.overlay = make(map[string]map[string]int)
	d.lastRefresh = next.takenAt
	d.mu.Unlock()

	d.recordStats(next)
	d.log.Debugf("directory refreshed with %d volunteers", len(m))
	return nil
}

// GetAvailable returns volunteers with status available and spare capacity,
// with the load overlay applied. The result is a deep copy sorted by address
// for deterministic iteration.
func (d *Directory) GetAvailable() []model.Volunteer {
	snap := d.snap.Load()

	d.mu.Lock()
	overlay := make(map[string]map[string]int, len(d.overlay))
	for addr, deltas := range d.overlay {
		cp := make(map[string]int, len(deltas))
		for sid, n := range deltas {
			cp[sid] = n
		}
		overlay[addr] = cp
	}
	d.mu.Unlock()

	out := make([]model.Volunteer, 0, len(snap.volunteers))
	for addr, v := range snap.volunteers {
		cp := v.Clone()
		applyOverlay(&cp, overlay[addr])
		if cp.Status != model.VolunteerAvailable || !cp.HasCapacity() {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Lookup returns the snapshot record for the given volunteer address.
func (d *Directory) Lookup(address string) (model.Volunteer, bool) {
	snap := d.snap.Load()
	v, ok := snap.volunteers[address]
	if !ok {
		return model.Volunteer{}, false
	}
	cp := v.Clone()
	d.mu.Lock()
	applyOverlay(&cp, d.overlay[address])
	d.mu.Unlock()
	return cp, true
}

// RecordLoadDelta adjusts the cached session count for a volunteer ahead of
// the next refresh. delta is +1 when sessionID is assigned to the volunteer
// and -1 when it is released. Both the request path and the sweeper go
// through here, so a session is never counted twice.
func (d *Directory) RecordLoadDelta(address, sessionID string, delta int) {
	if delta == 0 {
		return
	}
	d.mu.Lock()
	deltas := d.overlay[address]
	if deltas == nil {
		deltas = make(map[string]int)
		d.overlay[address] = deltas
	}
	deltas[sessionID] += delta
	if deltas[sessionID] == 0 {
		delete(deltas, sessionID)
	}
	d.mu.Unlock()
}

// TryReserve atomically claims one unit of the volunteer's capacity for
// sessionID. It fails when the volunteer is missing from the snapshot,
// unavailable, or already full with the overlay applied. The capacity check
// and the increment happen under one lock, so concurrent reservations can
// never push a volunteer past MaxConcurrentSessions.
func (d *Directory) TryReserve(address, sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := d.snap.Load()
	v, ok := snap.volunteers[address]
	if !ok {
		return false
	}
	cp := v.Clone()
	applyOverlay(&cp, d.overlay[address])
	if cp.Status != model.VolunteerAvailable || !cp.HasCapacity() {
		return false
	}

	deltas := d.overlay[address]
	if deltas == nil {
		deltas = make(map[string]int)
		d.overlay[address] = deltas
	}
	deltas[sessionID]++
	return true
}

// Release drops a reservation taken with TryReserve, for when the store
// write that was supposed to back it fails.
func (d *Directory) Release(address, sessionID string) {
	d.RecordLoadDelta(address, sessionID, -1)
}

func applyOverlay(v *model.Volunteer, deltas map[string]int) {
	for sid, n := range deltas {
		switch {
		case n > 0:
			if !containsID(v.ActiveSessions, sid) {
				v.ActiveSessions = append(v.ActiveSessions, sid)
			}
		case n < 0:
			v.ActiveSessions = removeID(v.ActiveSessions, sid)
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, s := range ids {
		if s == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (d *Directory) recordStats(snap *snapshot) {
	if d.sink == nil {
		return
	}
	fr, ok := d.sink.(metrics.FleetStatsRecorder)
	if !ok {
		return
	}
	ratings := make([]float64, 0, len(snap.volunteers))
	responses := make([]float64, 0, len(snap.volunteers))
	available := 0
	for _, v := range snap.volunteers {
		ratings = append(ratings, v.Rating)
		responses = append(responses, v.AvgResponseTime)
		if v.Status == model.VolunteerAvailable {
			available++
		}
	}
	st := metrics.FleetStats{
		Volunteers: len(snap.volunteers),
		Available:  available,
		Time:       snap.takenAt,
	}
	if len(ratings) > 0 {
		st.MeanRating = stat.Mean(ratings, nil)
		st.StdDevRating = stat.StdDev(ratings, nil)
		st.MeanResponseSeconds = stat.Mean(responses, nil)
	}
	if err := fr.RecordFleetStats(st); err != nil {
		d.log.Errorf("fleet stats metrics error: %v", err)
	}
}
