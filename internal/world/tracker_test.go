package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker() (*Tracker, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(t0)
	return NewTracker(TrackerConfig{StaleTimeout: time.Second}, clock), clock
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		tag  string
		want AgentKind
	}{
		{"ped", Pedestrian},
		{"car", Vehicle},
		{"bike", Vehicle},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.tag)
		require.NoError(t, err, tt.tag)
		assert.Equal(t, tt.want, got, tt.tag)
	}

	_, err := ParseKind("tram")
	assert.ErrorIs(t, err, ErrUnknownAgentKind)
	assert.Contains(t, err.Error(), `"tram"`)
	assert.Equal(t, "vehicle", Vehicle.String())
	assert.Equal(t, "AgentKind(0)", AgentKind(0).String())
}

func TestTracker_AddAndUpdateByID(t *testing.T) {
	tr, clock := newTestTracker()
	require.Equal(t, 0, tr.Snapshot().Len())

	require.NoError(t, tr.UpdateAgents([]Observation{
		{ID: 7, Type: "ped", Pos: geom.Pt(1, 2)},
		{ID: 3, Type: "car", Pos: geom.Pt(5, 5), Heading: 1, HasHeading: true,
			BBox: []geom.Point{geom.Pt(4, 4), geom.Pt(6, 6)}},
	}))

	snap := tr.Snapshot()
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, 3, snap.Agents[0].ID, "sorted by id")
	assert.Equal(t, Vehicle, snap.Agents[0].Kind)
	assert.Len(t, snap.Agents[0].BBox, 2)
	assert.Equal(t, Pedestrian, snap.Agents[1].Kind)
	assert.Nil(t, snap.Agents[1].BBox)

	clock.Advance(100 * time.Millisecond)
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 7, Type: "ped", Pos: geom.Pt(1.5, 2)}}))

	ped, ok := tr.Snapshot().Get(7)
	require.True(t, ok)
	assert.Equal(t, geom.Pt(1.5, 2), ped.Pos)
	assert.Equal(t, t0.Add(100*time.Millisecond), ped.Updated)
	assert.Equal(t, 2, tr.Len())

	// The earlier snapshot is untouched.
	old, _ := snap.Get(7)
	assert.Equal(t, geom.Pt(1, 2), old.Pos)
}

func TestTracker_UnknownKindDropped(t *testing.T) {
	tr, _ := newTestTracker()

	err := tr.UpdateAgents([]Observation{
		{ID: 1, Type: "ped", Pos: geom.Pt(0, 0)},
		{ID: 2, Type: "unicorn", Pos: geom.Pt(1, 1)},
		{ID: 3, Type: "bike", Pos: geom.Pt(2, 2)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAgentKind))
	assert.Contains(t, err.Error(), "agent 2")

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.Len())
	_, ok := snap.Get(2)
	assert.False(t, ok)
}

func TestTracker_CleanStale(t *testing.T) {
	tr, clock := newTestTracker()
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 1, Type: "ped"}, {ID: 2, Type: "car"}}))

	clock.Advance(600 * time.Millisecond)
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 2, Type: "car"}}))

	clock.Advance(600 * time.Millisecond)
	assert.Equal(t, 1, tr.Clean())
	_, ok := tr.Snapshot().Get(1)
	assert.False(t, ok)
	_, ok = tr.Snapshot().Get(2)
	assert.True(t, ok)

	assert.Equal(t, 0, tr.Clean())

	// UpdateAgents also cleans.
	clock.Advance(2 * time.Second)
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 9, Type: "ped"}}))
	assert.Equal(t, 1, tr.Snapshot().Len())
}

func TestTracker_RunCleanerExpiresWithoutUpdates(t *testing.T) {
	tr, clock := newTestTracker()
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 1, Type: "ped"}}))
	assert.Equal(t, 500*time.Millisecond, tr.CleanInterval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.RunCleaner(ctx) }()

	require.Eventually(t, func() bool {
		clock.Advance(300 * time.Millisecond)
		return tr.Snapshot().Len() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, tr.Len())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTracker_RunCleanerDisabled(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, timeutil.NewMockClock(t0))
	assert.NoError(t, tr.RunCleaner(context.Background()))
}

func TestTracker_UpdatePaths(t *testing.T) {
	tr, _ := newTestTracker()
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 4, Type: "ped", Pos: geom.Pt(0, 0)}}))

	cand := path.New(0.5, geom.Pt(0, 0), geom.Pt(0, 0.5), geom.Pt(0, 1))
	require.NoError(t, tr.UpdatePaths([]PathUpdate{
		{ID: 4, Type: "ped", Paths: []path.Path{cand}, ResetIntention: true, CrossDir: true},
		{ID: 99, Type: "ped", Paths: []path.Path{cand}},
	}))

	a, ok := tr.Snapshot().Get(4)
	require.True(t, ok)
	if diff := cmp.Diff([]path.Path{cand}, a.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, a.ResetIntention)
	assert.True(t, a.CrossDir)
	assert.Equal(t, 1, tr.Snapshot().Len(), "paths for unknown agents are ignored")

	// The snapshot owns its copy.
	cand.Points[1] = geom.Pt(9, 9)
	a, _ = tr.Snapshot().Get(4)
	assert.Equal(t, geom.Pt(0, 0.5), a.Paths[0].Points[1])

	err := tr.UpdatePaths([]PathUpdate{{ID: 4, Type: "?"}})
	assert.ErrorIs(t, err, ErrUnknownAgentKind)
}

func TestSnapshot_Nearest(t *testing.T) {
	var empty *Snapshot
	_, _, ok := empty.Nearest(geom.Pt(0, 0))
	assert.False(t, ok)

	s := &Snapshot{Agents: []Agent{
		{ID: 1, Pos: geom.Pt(3, 4)},
		{ID: 2, Pos: geom.Pt(1, 0)},
		{ID: 3, Pos: geom.Pt(-1, 0)},
	}}
	a, d, ok := s.Nearest(geom.Pt(0, 0))
	require.True(t, ok)
	assert.Equal(t, 2, a.ID)
	assert.Equal(t, 1.0, d)
}

func TestTracker_Reset(t *testing.T) {
	tr, _ := newTestTracker()
	require.NoError(t, tr.UpdateAgents([]Observation{{ID: 1, Type: "ped"}}))
	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 0, tr.Snapshot().Len())
}

func TestTracker_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	tr, _ := newTestTracker()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			batch := make([]Observation, 10)
			for j := range batch {
				batch[j] = Observation{ID: j, Type: "ped", Pos: geom.Pt(float64(i), 0)}
			}
			_ = tr.UpdateAgents(batch)
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		s := tr.Snapshot()
		for _, a := range s.Agents {
			// Every agent in one snapshot comes from the same batch.
			if a.Pos != s.Agents[0].Pos {
				t.Fatalf("torn snapshot: %v vs %v", a.Pos, s.Agents[0].Pos)
			}
		}
	}
}

func TestPoseDir(t *testing.T) {
	p := Pose{Heading: 0}
	assert.Equal(t, geom.Pt(1, 0), p.Dir())
}
