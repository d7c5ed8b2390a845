package control

import "fmt"

// Mode is the controller state after a tick.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeGoalReached
	ModeEmergency
	ModeCollisionOverride
	// ModePathLostAbort is terminal.
	ModePathLostAbort
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeGoalReached:
		return "GOAL_REACHED"
	case ModeEmergency:
		return "EMERGENCY"
	case ModeCollisionOverride:
		return "COLLISION_OVERRIDE"
	case ModePathLostAbort:
		return "PATH_LOST_ABORT"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Override reports whether the mode replaced the planner's action.
func (m Mode) Override() bool {
	return m != ModeNormal
}
