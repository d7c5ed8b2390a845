package control

import (
	"fmt"
	"math"
)

// AccClass is the acceleration part of an action.
type AccClass uint8

const (
	AccKeep AccClass = iota // hold current speed
	AccAccel
	AccDecel

	numAccClasses
)

func (a AccClass) String() string {
	switch a {
	case AccKeep:
		return "keep"
	case AccAccel:
		return "accel"
	case AccDecel:
		return "decel"
	default:
		return fmt.Sprintf("AccClass(%d)", uint8(a))
	}
}

// Action is a decoded planner action.
type Action struct {
	ID    int
	Acc   AccClass
	Accel float64 // m/s², signed
	Steer float64 // radians, positive left
}

// ActionTable maps action ids to (acceleration, steering) pairs. Steering
// is quantised into 2N+1 bins spanning [-MaxSteer, MaxSteer]; bin N is
// straight ahead. The id of bin k with class a is k*3 + a.
type ActionTable struct {
	n        int
	maxSteer float64
	maxAccel float64
}

// NewActionTable builds a table with numSteer bins on each side of zero.
func NewActionTable(numSteer int, maxSteer, maxAccel float64) ActionTable {
	if numSteer < 1 {
		numSteer = 1
	}
	return ActionTable{n: numSteer, maxSteer: maxSteer, maxAccel: maxAccel}
}

// Len returns the number of actions.
func (t ActionTable) Len() int { return (2*t.n + 1) * int(numAccClasses) }

// SteerBins returns the number of steering bins.
func (t ActionTable) SteerBins() int { return 2*t.n + 1 }

// ID returns the action id for steering bin k and class acc.
func (t ActionTable) ID(k int, acc AccClass) int {
	return k*int(numAccClasses) + int(acc)
}

// Steering returns the angle of bin k.
func (t ActionTable) Steering(k int) float64 {
	return float64(k-t.n) / float64(t.n) * t.maxSteer
}

// SteerBin returns the bin whose angle is closest to steer, clamped to the
// table's range.
func (t ActionTable) SteerBin(steer float64) int {
	k := int(math.Round(steer/t.maxSteer*float64(t.n))) + t.n
	return max(0, min(2*t.n, k))
}

// Lookup decodes id. ok is false for ids outside the table.
func (t ActionTable) Lookup(id int) (Action, bool) {
	if id < 0 || id >= t.Len() {
		return Action{}, false
	}
	k := id / int(numAccClasses)
	acc := AccClass(id % int(numAccClasses))
	return t.action(k, acc), true
}

func (t ActionTable) action(k int, acc AccClass) Action {
	a := Action{ID: t.ID(k, acc), Acc: acc, Steer: t.Steering(k)}
	switch acc {
	case AccAccel:
		a.Accel = t.maxAccel
	case AccDecel:
		a.Accel = -t.maxAccel
	}
	return a
}

// Decelerate is the fixed override action: straight ahead, slowing down.
func (t ActionTable) Decelerate() Action { return t.action(t.n, AccDecel) }

// Keep is straight ahead at constant speed.
func (t ActionTable) Keep() Action { return t.action(t.n, AccKeep) }
