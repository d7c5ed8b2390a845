// Package control runs the per-tick execution state machine. Each tick it
// refreshes the sensed vehicle state, evaluates the safety overrides in
// priority order (goal reached, collision, emergency, path divergence),
// turns the chosen action into a rate-limited command and scores the step.
//
// Dependency rule: control may depend on path, safety and world, never on
// a transport or storage package. No SQL is allowed in this package.
package control

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/monitoring"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/safety"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/world"
)

var (
	// ErrSensorUnavailable means no sensed pose could be obtained.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrPoseStale means the latest pose is older than one control period.
	ErrPoseStale = errors.New("sensed pose is stale")
	// ErrPathLost means the vehicle diverged from the path and the run
	// was aborted.
	ErrPathLost = errors.New("vehicle lost the path")
	// ErrTerminated is returned by Step once the controller has stopped.
	ErrTerminated = errors.New("controller terminated")
)

// Deps are the controller's collaborators. Sensor, Planner and Sink are
// required. A nil Goal or Emergency selects the defaults built on the
// current path and the agent snapshot.
type Deps struct {
	Sensor    Sensor
	Planner   Planner
	Agents    AgentSource
	Goal      GoalChecker
	Emergency EmergencySignal
	Sink      CommandSink
	Observer  Observer
	Clock     timeutil.Clock
	Logger    *zap.Logger
}

// Controller is the execution state machine. Step and Run must be called
// from one goroutine; SetPath, SplicePath, Path and Last are safe from
// any goroutine.
type Controller struct {
	cfg       Config
	sensor    Sensor
	planner   Planner
	agents    AgentSource
	goal      GoalChecker
	emergency EmergencySignal
	sink      CommandSink
	observer  Observer
	clock     timeutil.Clock
	log       *zap.Logger

	plan atomic.Pointer[plan]
	last atomic.Pointer[TickResult]

	// Owned by the tick goroutine.
	state      world.VehicleState
	mode       Mode
	tick       uint64
	terminated bool
	safety     safety.Margins
	real       safety.Margins
}

// plan pairs a path with a generation counter bumped on every swap.
type plan struct {
	path path.Path
	gen  uint64
}

// New builds a controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sensor == nil || deps.Planner == nil || deps.Sink == nil {
		return nil, errors.New("control: sensor, planner and sink are required")
	}
	c := &Controller{
		cfg:       cfg,
		sensor:    deps.Sensor,
		planner:   deps.Planner,
		agents:    deps.Agents,
		goal:      deps.Goal,
		emergency: deps.Emergency,
		sink:      deps.Sink,
		observer:  deps.Observer,
		clock:     deps.Clock,
		log:       deps.Logger,
		safety:    cfg.SafetyMargins(),
		real:      cfg.RealMargins(),
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if c.log == nil {
		c.log = monitoring.Named("control")
	}
	if c.agents == nil {
		c.agents = emptyAgents{}
	}
	if c.goal == nil {
		c.goal = PathEndGoal{Tolerance: cfg.GoalTolerance}
	}
	if c.emergency == nil {
		c.emergency = ProximityEmergency{Distance: cfg.EmergencyDistance}
	}
	c.plan.Store(&plan{path: path.Path{Step: cfg.PathStep}})
	return c, nil
}

type emptyAgents struct{}

func (emptyAgents) Snapshot() *world.Snapshot { return &world.Snapshot{} }

// Config returns the controller configuration.
func (c *Controller) Config() Config { return c.cfg }

// SetPath replaces the reference path wholesale with p resampled to the
// configured step. The swap takes effect at the next tick.
func (c *Controller) SetPath(p path.Path) {
	p.Step = c.cfg.PathStep
	c.swap(p.Interpolate(c.cfg.PlanHorizon))
}

// SplicePath resamples next and joins it onto the current path, keeping
// the already travelled prefix.
func (c *Controller) SplicePath(next path.Path) {
	next.Step = c.cfg.PathStep
	c.swap(c.Path().CutJoin(next.Interpolate(c.cfg.PlanHorizon)))
}

// swap publishes p as the next plan generation.
func (c *Controller) swap(p path.Path) {
	for {
		old := c.plan.Load()
		if c.plan.CompareAndSwap(old, &plan{path: p, gen: old.gen + 1}) {
			return
		}
	}
}

// Path returns the current reference path. It must not be modified.
func (c *Controller) Path() *path.Path { return &c.plan.Load().path }

// PathGen returns the number of path swaps so far.
func (c *Controller) PathGen() uint64 { return c.plan.Load().gen }

// Last returns the most recent tick result, or nil before the first tick.
func (c *Controller) Last() *TickResult { return c.last.Load() }

// Mode returns the mode after the last tick. Tick goroutine only.
func (c *Controller) Mode() Mode { return c.mode }

// refresh loads a fresh pose and speed into c.state.
func (c *Controller) refresh() error {
	pose, at, err := c.sensor.SensedPose()
	if err != nil {
		if !errors.Is(err, ErrSensorUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
		}
		return err
	}
	if age := c.clock.Since(at); age > c.cfg.Period() {
		return fmt.Errorf("%w: age %s exceeds control period %s", ErrPoseStale, age, c.cfg.Period())
	}
	c.state = world.VehicleState{Pose: pose, Speed: c.sensor.SensedSpeed(), Time: at}
	return nil
}

// Step runs one tick. It returns ErrPathLost on the tick that aborts the
// run, a wrapped ErrSensorUnavailable or ErrPoseStale when the pose cannot
// be refreshed, and ErrTerminated for every call after either.
func (c *Controller) Step() (TickResult, error) {
	if c.terminated {
		return TickResult{}, ErrTerminated
	}
	if err := c.refresh(); err != nil {
		c.terminated = true
		c.log.Error("pose refresh failed", zap.Error(err))
		return TickResult{}, err
	}

	// One consistent view of the shared state for the whole tick.
	pl := c.plan.Load()
	p := &pl.path
	agents := c.agents.Snapshot()
	if agents == nil {
		agents = &world.Snapshot{}
	}
	vs := c.state
	view := View{Pose: vs.Pose, Path: p, Agents: agents}

	res := TickResult{
		Tick:           c.tick,
		Time:           c.clock.Now(),
		Vehicle:        vs,
		CollisionAgent: -1,
	}

	proposed, ok := c.cfg.Actions.Lookup(c.planner.ProposeAction(PlannerInput{Vehicle: vs, Path: p, PathGen: pl.gen, Agents: agents}))
	if !ok {
		c.log.Warn("planner proposed an unknown action; decelerating")
		proposed = c.cfg.Actions.Decelerate()
	}
	res.Proposed = proposed
	action := proposed

	switch {
	case c.goal.GoalReached(view):
		res.Mode = ModeGoalReached
		action = c.cfg.Actions.Decelerate()
		res.Completed = vs.Speed <= c.cfg.StoppedSpeed

	case vs.Speed > c.cfg.MinCollisionSpeed && c.collides(vs.Pose, agents, c.real, &res.CollisionAgent):
		res.Mode = ModeCollisionOverride
		action = c.cfg.Actions.Decelerate()

	case c.emergency.EmergencyAsserted(view):
		res.Mode = ModeEmergency
		action = c.cfg.Actions.Decelerate()

	case !p.Empty() && p.MinDist(vs.Pos) > c.cfg.DivergenceThreshold:
		res.Mode = ModePathLostAbort
		c.terminated = true
		c.transition(res)
		c.log.Error("path divergence abort",
			zap.Float64("offset", p.MinDist(vs.Pos)),
			zap.Float64("threshold", c.cfg.DivergenceThreshold))
		c.finish(res)
		return res, ErrPathLost

	default:
		res.Mode = ModeNormal
	}
	res.Executed = action

	if res.Mode == ModeEmergency {
		res.Command = Command{
			Tick:        c.tick,
			TargetSpeed: EmergencyStopSpeed,
			Steer:       0,
			Accel:       action.Accel,
			CurSpeed:    vs.Speed,
		}
	} else {
		res.Command = c.smooth(action, vs.Speed)
	}
	res.Reward = c.reward(vs, agents, action, res.Mode == ModeGoalReached)

	c.transition(res)
	if err := c.sink.Publish(res.Command); err != nil {
		c.log.Warn("command publish failed", zap.Uint64("tick", c.tick), zap.Error(err))
	}
	res.Published = true
	c.log.Debug("command",
		zap.Uint64("tick", res.Command.Tick),
		zap.String("mode", res.Mode.String()),
		zap.Float64("target_speed", res.Command.TargetSpeed),
		zap.Float64("steer", res.Command.Steer),
		zap.Float64("speed", vs.Speed))
	c.tick++

	if res.Completed {
		c.terminated = true
		c.log.Info("goal reached and vehicle stopped")
	}
	c.finish(res)
	return res, nil
}

// smooth moves the target speed at most one SpeedStep from the real speed
// in the direction of the action's acceleration, then clamps to
// [0, MaxSpeed].
func (c *Controller) smooth(a Action, speed float64) Command {
	target := speed
	switch {
	case a.Accel > 0:
		target += c.cfg.SpeedStep()
	case a.Accel < 0:
		target -= c.cfg.SpeedStep()
	}
	target = math.Max(0, math.Min(target, c.cfg.MaxSpeed))
	return Command{Tick: c.tick, TargetSpeed: target, Steer: a.Steer, Accel: a.Accel, CurSpeed: speed}
}

// collides reports whether any agent is inside zone m of a vehicle at
// pose, writing the first such agent's id to hit.
func (c *Controller) collides(pose world.Pose, agents *world.Snapshot, m safety.Margins, hit *int) bool {
	if agents == nil {
		return false
	}
	for _, a := range agents.Agents {
		if safety.InZone(pose.Pos, pose.Heading, a.Pos, m) {
			if hit != nil {
				*hit = a.ID
			}
			return true
		}
	}
	return false
}

// transition logs mode changes. Overrides log at Warn.
func (c *Controller) transition(res TickResult) {
	prev := c.mode
	c.mode = res.Mode
	if prev == res.Mode {
		return
	}
	fields := []zap.Field{
		zap.String("from", prev.String()),
		zap.String("to", res.Mode.String()),
		zap.Uint64("tick", res.Tick),
	}
	switch res.Mode {
	case ModeCollisionOverride:
		c.log.Warn("collision override", append(fields, zap.Int("agent", res.CollisionAgent))...)
	case ModeEmergency:
		c.log.Warn("emergency stop", fields...)
	default:
		c.log.Info("mode change", fields...)
	}
}

func (c *Controller) finish(res TickResult) {
	c.last.Store(&res)
	if c.observer != nil {
		c.observer.ObserveTick(res)
	}
}

// stop publishes a zero-speed straight command.
func (c *Controller) stop() {
	cmd := Command{Tick: c.tick, CurSpeed: c.state.Speed}
	if err := c.sink.Publish(cmd); err != nil {
		c.log.Warn("stop command publish failed", zap.Error(err))
	}
	c.tick++
}
