package sim

import (
	"math"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
)

// CruiseConfig tunes the cruise policy.
type CruiseConfig struct {
	Speed     float64 // cruise speed, m/s
	Ahead     float64 // pursuit look-ahead, metres
	Wheelbase float64
	MaxAccel  float64
	// StopMargin is added to the braking distance when deciding to slow
	// for the end of the path.
	StopMargin float64
}

// Cruise is a planner that pursues a look-ahead point on the path at a
// fixed cruise speed and brakes in time to stop at the path's end. It
// ignores agents; the controller's overrides handle them.
type Cruise struct {
	cfg     CruiseConfig
	actions control.ActionTable
	look    path.Lookahead
	gen     uint64
	started bool
}

// NewCruise returns a cruise planner choosing from actions.
func NewCruise(cfg CruiseConfig, actions control.ActionTable) *Cruise {
	return &Cruise{cfg: cfg, actions: actions, look: path.Lookahead{Ahead: cfg.Ahead}}
}

// ProposeAction implements control.Planner.
func (c *Cruise) ProposeAction(in control.PlannerInput) int {
	p := in.Path
	if p == nil || p.Empty() {
		return c.actions.Decelerate().ID
	}
	if !c.started || in.PathGen != c.gen {
		c.look.Reset()
		c.gen, c.started = in.PathGen, true
	}
	pos, speed := in.Vehicle.Pos, in.Vehicle.Speed

	steer := 0.0
	if target, _, ok := c.look.Target(*p, pos); ok {
		steer = PursuitSteer(pos, in.Vehicle.Heading, target, c.cfg.Wheelbase)
	}
	k := c.actions.SteerBin(steer)

	remaining := p.Length(p.Nearest(pos))
	braking := speed * speed / (2 * c.cfg.MaxAccel)
	acc := control.AccKeep
	switch {
	case remaining <= braking+c.cfg.StopMargin:
		acc = control.AccDecel
	case speed < c.cfg.Speed-0.25:
		acc = control.AccAccel
	case speed > c.cfg.Speed+0.25:
		acc = control.AccDecel
	}
	return c.actions.ID(k, acc)
}

// PursuitSteer is the pure-pursuit steering angle that puts a vehicle
// with the given wheelbase on an arc through target.
func PursuitSteer(pos geom.Point, heading float64, target geom.Point, wheelbase float64) float64 {
	ld := geom.Distance(pos, target)
	if ld < 1e-6 {
		return 0
	}
	alpha := geom.AngleDiff(geom.SlopeAngle(pos, target), heading)
	return math.Atan2(2*wheelbase*math.Sin(alpha), ld)
}
