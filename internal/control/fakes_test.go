package control

import (
	"sync"
	"time"

	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/world"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// fakeSensor stamps every pose with the clock's current time unless age
// or err are set.
type fakeSensor struct {
	mu    sync.Mutex
	clock timeutil.Clock
	pose  world.Pose
	speed float64
	age   time.Duration
	err   error
	calls int
}

func (s *fakeSensor) SensedPose() (world.Pose, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return world.Pose{}, time.Time{}, s.err
	}
	return s.pose, s.clock.Now().Add(-s.age), nil
}

func (s *fakeSensor) SensedSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *fakeSensor) set(pos geom.Point, heading, speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = world.Pose{Pos: pos, Heading: heading}
	s.speed = speed
}

type recordingSink struct {
	mu   sync.Mutex
	cmds []Command
	ch   chan Command
}

func newSink() *recordingSink { return &recordingSink{ch: make(chan Command, 64)} }

func (s *recordingSink) Publish(cmd Command) error {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()
	s.ch <- cmd
	return nil
}

func (s *recordingSink) all() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.cmds...)
}

type staticAgents struct{ snap *world.Snapshot }

func (a staticAgents) Snapshot() *world.Snapshot { return a.snap }

func agentsAt(pts ...geom.Point) staticAgents {
	s := &world.Snapshot{}
	for i, p := range pts {
		s.Agents = append(s.Agents, world.Agent{ID: 100 + i, Kind: world.Pedestrian, Pos: p})
	}
	return staticAgents{s}
}

type recordingObserver struct {
	mu      sync.Mutex
	results []TickResult
}

func (o *recordingObserver) ObserveTick(r TickResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

func constPlanner(id int) Planner {
	return PlannerFunc(func(PlannerInput) int { return id })
}

// straightPath runs along +x from the origin.
func straightPath(length float64) path.Path {
	return path.New(1, geom.Pt(0, 0), geom.Pt(length, 0))
}

type harness struct {
	ctrl   *Controller
	clock  *timeutil.MockClock
	sensor *fakeSensor
	sink   *recordingSink
	obs    *recordingObserver
	cfg    Config
}

func newHarness(deps Deps) *harness {
	cfg := DefaultConfig()
	clock := timeutil.NewMockClock(t0)
	h := &harness{
		clock:  clock,
		sensor: &fakeSensor{clock: clock},
		sink:   newSink(),
		obs:    &recordingObserver{},
		cfg:    cfg,
	}
	if deps.Planner == nil {
		deps.Planner = constPlanner(cfg.Actions.Keep().ID)
	}
	deps.Sensor = h.sensor
	deps.Sink = h.sink
	deps.Observer = h.obs
	deps.Clock = clock
	ctrl, err := New(cfg, deps)
	if err != nil {
		panic(err)
	}
	h.ctrl = ctrl
	h.ctrl.SetPath(straightPath(20))
	return h
}
