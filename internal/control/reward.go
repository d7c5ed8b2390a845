package control

import (
	"math"

	"github.com/banshee-data/crowd-drive/internal/world"
)

// reward scores a tick. Reaching the goal earns GoalReward; moving with an
// agent inside the expanded zone costs the crash penalty; otherwise the
// reward is the action penalty plus the speed-shaping penalty.
func (c *Controller) reward(vs world.VehicleState, agents *world.Snapshot, a Action, goal bool) float64 {
	r := c.cfg.Reward
	if goal {
		return r.GoalReward
	}
	if vs.Speed > r.CrashCheckMinSpeed && c.collides(vs.Pose, agents, c.safety, nil) {
		return CrashPenalty(r, vs.Speed)
	}
	return ActionPenalty(r, a) + MovementPenalty(r, vs.Speed, c.cfg.MaxSpeed)
}

// CrashPenalty grows with the square of the impact speed.
func CrashPenalty(r RewardConfig, speed float64) float64 {
	return r.CrashPenalty * (speed*speed + r.BaseCrashVel)
}

// ActionPenalty discourages braking and large steering.
func ActionPenalty(r RewardConfig, a Action) float64 {
	p := r.SteerPenalty * math.Abs(a.Steer)
	if a.Acc == AccDecel {
		p += r.AccPenalty
	}
	return p
}

// MovementPenalty is zero at MaxSpeed and grows linearly below or above it.
func MovementPenalty(r RewardConfig, speed, maxSpeed float64) float64 {
	return -r.FactorVel * math.Abs(speed-maxSpeed) / maxSpeed
}
