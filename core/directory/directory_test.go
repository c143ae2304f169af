package directory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/infra/logger"
	"github.com/voluntr/engine/infra/storage"
)

func dirVolunteer(addr string, status model.VolunteerStatus, max int) model.Volunteer {
	return model.Volunteer{
		Address:               addr,
		Status:                status,
		Languages:             []string{"en"},
		Rating:                4,
		MaxConcurrentSessions: max,
	}
}

func TestForceRefreshPopulatesSnapshot(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-b", model.VolunteerAvailable, 2))
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))
	st.SetVolunteer(dirVolunteer("vol-c", model.VolunteerOffline, 2))
	st.SetVolunteer(dirVolunteer("vol-d", model.VolunteerBusy, 2))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	got := d.GetAvailable()
	require.Len(t, got, 2)
	assert.Equal(t, "vol-a", got[0].Address)
	assert.Equal(t, "vol-b", got[1].Address)

	v, ok := d.Lookup("vol-c")
	require.True(t, ok)
	assert.Equal(t, model.VolunteerOffline, v.Status)
	_, ok = d.Lookup("vol-x")
	assert.False(t, ok)
}

func TestForceRefreshSkipsInvalidRecords(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))
	bad := dirVolunteer("vol-bad", model.VolunteerAvailable, 0) // no capacity
	st.SetVolunteer(bad)

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	_, ok := d.Lookup("vol-bad")
	assert.False(t, ok)
	assert.Len(t, d.GetAvailable(), 1)
}

func TestRefreshHonorsTTL(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))

	loads := 0
	st.Fail = func(op string) error {
		if op == "load_volunteers" {
			loads++
		}
		return nil
	}

	d := New(st, time.Hour, nil, logger.NopLogger{})
	require.NoError(t, d.Refresh(context.Background()))
	require.NoError(t, d.Refresh(context.Background()))
	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, 1, loads, "refreshes within the TTL must not hit the store")

	require.NoError(t, d.ForceRefresh(context.Background()))
	assert.Equal(t, 2, loads)
}

func TestRecordLoadDeltaOverlay(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	d.RecordLoadDelta("vol-a", "s1", +1)
	v, ok := d.Lookup("vol-a")
	require.True(t, ok)
	assert.Equal(t, 1, v.Load())

	d.RecordLoadDelta("vol-a", "s2", +1)
	assert.Empty(t, d.GetAvailable(), "full volunteer drops out of the available set")

	d.RecordLoadDelta("vol-a", "s1", -1)
	got := d.GetAvailable()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Load())
}

func TestRecordLoadDeltaIsIdempotentPerSession(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 5))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	// The same session id only ever counts once, regardless of how many
	// positive deltas land.
	d.RecordLoadDelta("vol-a", "s1", +1)
	d.RecordLoadDelta("vol-a", "s1", +1)
	v, _ := d.Lookup("vol-a")
	assert.Equal(t, 1, v.Load())
}

func TestTryReserveEnforcesCapacity(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))
	st.SetVolunteer(dirVolunteer("vol-off", model.VolunteerOffline, 2))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	assert.True(t, d.TryReserve("vol-a", "s1"))
	assert.True(t, d.TryReserve("vol-a", "s2"))
	assert.False(t, d.TryReserve("vol-a", "s3"), "a full volunteer rejects further reservations")
	assert.False(t, d.TryReserve("vol-off", "s4"))
	assert.False(t, d.TryReserve("vol-ghost", "s5"))

	d.Release("vol-a", "s2")
	assert.True(t, d.TryReserve("vol-a", "s3"))
}

func TestTryReserveConcurrentNeverOverfills(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 3))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if d.TryReserve("vol-a", fmt.Sprintf("s%d", n)) {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(3), won.Load())
	v, ok := d.Lookup("vol-a")
	require.True(t, ok)
	assert.Equal(t, 3, v.Load())
}

func TestForceRefreshResetsOverlay(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))
	d.RecordLoadDelta("vol-a", "s1", +1)

	// The store has no persisted sessions, so a refresh discards the delta.
	require.NoError(t, d.ForceRefresh(context.Background()))
	v, _ := d.Lookup("vol-a")
	assert.Zero(t, v.Load())
}

func TestRefreshPreservesPersistedAssignments(t *testing.T) {
	st := storage.NewMemoryStore()
	vol := dirVolunteer("vol-a", model.VolunteerAvailable, 2)
	st.SetVolunteer(vol)
	sess := &model.Session{
		SessionID: "s1",
		Status:    model.SessionAssigned,
		Volunteer: &vol,
		StartTime: time.Now(),
	}
	require.NoError(t, st.SaveSession(context.Background(), sess))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	v, ok := d.Lookup("vol-a")
	require.True(t, ok)
	assert.Equal(t, 1, v.Load(), "persisted assignments survive the refresh")
}

type fleetSink struct {
	metrics.NopSink
	mu    sync.Mutex
	stats []metrics.FleetStats
}

func (f *fleetSink) RecordFleetStats(st metrics.FleetStats) error {
	f.mu.Lock()
	f.stats = append(f.stats, st)
	f.mu.Unlock()
	return nil
}

func TestRefreshRecordsFleetStats(t *testing.T) {
	st := storage.NewMemoryStore()
	a := dirVolunteer("vol-a", model.VolunteerAvailable, 2)
	a.Rating = 5
	a.AvgResponseTime = 60
	b := dirVolunteer("vol-b", model.VolunteerOffline, 2)
	b.Rating = 3
	b.AvgResponseTime = 120
	st.SetVolunteer(a)
	st.SetVolunteer(b)

	sink := &fleetSink{}
	d := New(st, time.Minute, sink, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.stats, 1)
	got := sink.stats[0]
	assert.Equal(t, 2, got.Volunteers)
	assert.Equal(t, 1, got.Available)
	assert.InDelta(t, 4.0, got.MeanRating, 1e-9)
	assert.InDelta(t, 90.0, got.MeanResponseSeconds, 1e-9)
}

func TestGetAvailableReturnsCopies(t *testing.T) {
	st := storage.NewMemoryStore()
	st.SetVolunteer(dirVolunteer("vol-a", model.VolunteerAvailable, 2))

	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	got := d.GetAvailable()
	got[0].Languages[0] = "zz"
	got[0].ActiveSessions = append(got[0].ActiveSessions, "rogue")

	again := d.GetAvailable()
	assert.Equal(t, "en", again[0].Languages[0])
	assert.Zero(t, again[0].Load())
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	st := storage.NewMemoryStore()
	for _, addr := range []string{"vol-a", "vol-b", "vol-c"} {
		st.SetVolunteer(dirVolunteer(addr, model.VolunteerAvailable, 10))
	}
	d := New(st, time.Minute, nil, logger.NopLogger{})
	require.NoError(t, d.ForceRefresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch n % 4 {
				case 0:
					d.RecordLoadDelta("vol-a", "s1", +1)
					d.RecordLoadDelta("vol-a", "s1", -1)
				case 1:
					d.GetAvailable()
				case 2:
					d.Lookup("vol-b")
				case 3:
					_ = d.ForceRefresh(context.Background())
				}
			}
		}(i)
	}
	wg.Wait()
}
