package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
)

// Observation is one agent as reported by perception.
type Observation struct {
	ID         int
	Type       string
	Pos        geom.Point
	Heading    float64
	HasHeading bool
	BBox       []geom.Point
}

// PathUpdate carries predicted candidate paths for one agent.
type PathUpdate struct {
	ID             int
	Type           string
	Paths          []path.Path
	ResetIntention bool
	CrossDir       bool
}

// TrackerConfig holds tracker parameters.
type TrackerConfig struct {
	// StaleTimeout removes agents not observed for this long.
	StaleTimeout time.Duration
}

// DefaultTrackerConfig returns production-default tracker parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{StaleTimeout: time.Second}
}

// Tracker folds asynchronous agent updates into snapshots. Writers are
// serialised by a mutex; readers only ever load the published snapshot.
type Tracker struct {
	cfg   TrackerConfig
	clock timeutil.Clock

	mu     sync.Mutex
	agents map[int]*Agent

	snap atomic.Pointer[Snapshot]
}

// NewTracker creates an empty tracker.
func NewTracker(cfg TrackerConfig, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	t := &Tracker{cfg: cfg, clock: clock, agents: make(map[int]*Agent)}
	t.snap.Store(&Snapshot{Time: clock.Now()})
	return t
}

// UpdateAgents applies a batch of observations: new ids are added, known
// ids updated in place, and stale agents removed. Entries with an unknown
// type are dropped; their errors are joined into the returned error while
// the rest of the batch is still applied.
func (t *Tracker) UpdateAgents(obs []Observation) error {
	now := t.clock.Now()
	var errs []error

	t.mu.Lock()
	for _, o := range obs {
		kind, err := ParseKind(o.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %d: %w", o.ID, err))
			continue
		}
		a, ok := t.agents[o.ID]
		if !ok {
			a = &Agent{ID: o.ID}
			t.agents[o.ID] = a
		}
		a.Kind = kind
		a.Pos = o.Pos
		a.Heading = o.Heading
		a.HasHeading = o.HasHeading
		if kind == Vehicle {
			a.BBox = append(a.BBox[:0], o.BBox...)
		} else {
			a.BBox = nil
		}
		a.Updated = now
	}
	t.cleanLocked(now)
	t.publishLocked(now)
	t.mu.Unlock()

	return errors.Join(errs...)
}

// UpdatePaths replaces the candidate paths of known agents. Updates for
// agents not currently tracked are ignored.
func (t *Tracker) UpdatePaths(ups []PathUpdate) error {
	now := t.clock.Now()
	var errs []error

	t.mu.Lock()
	for _, u := range ups {
		if _, err := ParseKind(u.Type); err != nil {
			errs = append(errs, fmt.Errorf("agent %d paths: %w", u.ID, err))
			continue
		}
		a, ok := t.agents[u.ID]
		if !ok {
			continue
		}
		a.Paths = make([]path.Path, len(u.Paths))
		for i, p := range u.Paths {
			a.Paths[i] = path.New(p.Step, p.Points...)
		}
		a.ResetIntention = u.ResetIntention
		a.CrossDir = u.CrossDir
		a.PathUpdated = now
	}
	t.publishLocked(now)
	t.mu.Unlock()

	return errors.Join(errs...)
}

// Clean removes agents not updated within the stale timeout and returns
// how many were removed.
func (t *Tracker) Clean() int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.cleanLocked(now)
	if n > 0 {
		t.publishLocked(now)
	}
	return n
}

// CleanInterval is how often RunCleaner sweeps: half the stale timeout, so
// an agent outlives its timeout by at most half again.
func (t *Tracker) CleanInterval() time.Duration { return t.cfg.StaleTimeout / 2 }

// RunCleaner calls Clean every CleanInterval until ctx ends, so agents
// expire even while no perception updates arrive. It returns nil at once
// when stale removal is disabled.
func (t *Tracker) RunCleaner(ctx context.Context) error {
	interval := t.CleanInterval()
	if interval <= 0 {
		return nil
	}
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			t.Clean()
		}
	}
}

func (t *Tracker) cleanLocked(now time.Time) int {
	if t.cfg.StaleTimeout <= 0 {
		return 0
	}
	removed := 0
	for id, a := range t.agents {
		if now.Sub(a.Updated) > t.cfg.StaleTimeout {
			delete(t.agents, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) publishLocked(now time.Time) {
	s := &Snapshot{Agents: make([]Agent, 0, len(t.agents)), Time: now}
	for _, a := range t.agents {
		s.Agents = append(s.Agents, a.clone())
	}
	sort.Slice(s.Agents, func(i, j int) bool { return s.Agents[i].ID < s.Agents[j].ID })
	t.snap.Store(s)
}

// Snapshot returns the most recently published snapshot. It never returns
// nil and must not be modified.
func (t *Tracker) Snapshot() *Snapshot {
	return t.snap.Load()
}

// Len returns the number of tracked agents.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.agents)
}

// Reset drops every agent.
func (t *Tracker) Reset() {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents = make(map[int]*Agent)
	t.publishLocked(now)
}
