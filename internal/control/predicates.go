package control

import (
	"github.com/banshee-data/crowd-drive/internal/geom"
)

// PathEndGoal reports the goal reached once the vehicle is within
// Tolerance of the final waypoint of the tick's path. An empty path has
// no goal.
type PathEndGoal struct {
	Tolerance float64
}

// GoalReached implements GoalChecker.
func (g PathEndGoal) GoalReached(v View) bool {
	if v.Path == nil || v.Path.Empty() {
		return false
	}
	return geom.Distance(v.Pose.Pos, v.Path.Points[v.Path.LastIndex()]) <= g.Tolerance
}

// ProximityEmergency asserts an emergency while the nearest agent in the
// tick's snapshot is closer than Distance to the vehicle.
type ProximityEmergency struct {
	Distance float64
}

// EmergencyAsserted implements EmergencySignal.
func (e ProximityEmergency) EmergencyAsserted(v View) bool {
	if v.Agents == nil {
		return false
	}
	_, d, ok := v.Agents.Nearest(v.Pose.Pos)
	return ok && d < e.Distance
}

// AnyEmergency asserts while any of its signals does.
type AnyEmergency []EmergencySignal

// EmergencyAsserted implements EmergencySignal.
func (a AnyEmergency) EmergencyAsserted(v View) bool {
	for _, s := range a {
		if s != nil && s.EmergencyAsserted(v) {
			return true
		}
	}
	return false
}
