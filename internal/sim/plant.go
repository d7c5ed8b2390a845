// Package sim closes the control loop without hardware: a kinematic
// bicycle plant stands in for the vehicle, a cruise policy for the
// planner, and scripted walkers for the perception feed.
package sim

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/world"
)

// PlantConfig describes the simulated vehicle.
type PlantConfig struct {
	Wheelbase float64 // metres
	MaxAccel  float64 // m/s²
	MaxSteer  float64 // radians
	// BrakeFactor scales MaxAccel while an emergency stop is commanded.
	BrakeFactor float64
	Start       world.Pose
	StartSpeed  float64
}

// DefaultPlantConfig matches the default controller tuning.
func DefaultPlantConfig() PlantConfig {
	return PlantConfig{Wheelbase: 2.2, MaxAccel: 1.5, MaxSteer: 0.6, BrakeFactor: 2}
}

// integration step
const substep = 10 * time.Millisecond

// Plant is a kinematic bicycle model driven by published commands. It
// implements control.Sensor and control.CommandSink. State is integrated
// lazily up to the clock's current time whenever it is read or commanded.
type Plant struct {
	cfg   PlantConfig
	clock timeutil.Clock

	mu     sync.Mutex
	pose   world.Pose
	speed  float64
	target float64
	steer  float64
	last   time.Time
	cmds   []control.Command

	published chan struct{}
}

// NewPlant places the vehicle at cfg.Start.
func NewPlant(cfg PlantConfig, clock timeutil.Clock) *Plant {
	if cfg.BrakeFactor <= 0 {
		cfg.BrakeFactor = 1
	}
	return &Plant{
		cfg:       cfg,
		clock:     clock,
		pose:      cfg.Start,
		speed:     cfg.StartSpeed,
		target:    cfg.StartSpeed,
		last:      clock.Now(),
		published: make(chan struct{}, 1),
	}
}

// SensedPose implements control.Sensor. The pose is always fresh.
func (p *Plant) SensedPose() (world.Pose, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	p.advanceLocked(now)
	return p.pose, now, nil
}

// SensedSpeed implements control.Sensor.
func (p *Plant) SensedSpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Publish implements control.CommandSink.
func (p *Plant) Publish(cmd control.Command) error {
	p.mu.Lock()
	p.advanceLocked(p.clock.Now())
	p.target = cmd.TargetSpeed
	p.steer = math.Max(-p.cfg.MaxSteer, math.Min(cmd.Steer, p.cfg.MaxSteer))
	p.cmds = append(p.cmds, cmd)
	p.mu.Unlock()

	select {
	case p.published <- struct{}{}:
	default:
	}
	return nil
}

// Published signals after each command.
func (p *Plant) Published() <-chan struct{} { return p.published }

// Commands returns every command received so far.
func (p *Plant) Commands() []control.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]control.Command(nil), p.cmds...)
}

// State returns the current vehicle state without advancing it.
func (p *Plant) State() world.VehicleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return world.VehicleState{Pose: p.pose, Speed: p.speed, Time: p.last}
}

func (p *Plant) advanceLocked(now time.Time) {
	for p.last.Before(now) {
		h := min(substep, now.Sub(p.last))
		p.integrate(h.Seconds())
		p.last = p.last.Add(h)
	}
}

func (p *Plant) integrate(dt float64) {
	target, accel := p.target, p.cfg.MaxAccel
	if target < 0 {
		target, accel = 0, accel*p.cfg.BrakeFactor
	}
	dv := math.Max(-accel*dt, math.Min(target-p.speed, accel*dt))
	p.speed = math.Max(0, p.speed+dv)

	p.pose.Pos = r2.Add(p.pose.Pos, r2.Scale(p.speed*dt, geom.Unit(p.pose.Heading)))
	if p.cfg.Wheelbase > 0 {
		p.pose.Heading = geom.CapAngle(p.pose.Heading + p.speed/p.cfg.Wheelbase*math.Tan(p.steer)*dt)
	}
}
