package control

import (
	"time"

	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/world"
)

// Sensor supplies the sensed ego pose and speed.
type Sensor interface {
	// SensedPose returns the latest pose and the time it was measured.
	// It returns an error wrapping ErrSensorUnavailable when no pose has
	// been received.
	SensedPose() (world.Pose, time.Time, error)
	// SensedSpeed returns the latest forward speed (m/s).
	SensedSpeed() float64
}

// PlannerInput is what the planner sees each tick.
type PlannerInput struct {
	Vehicle world.VehicleState
	Path    *path.Path
	PathGen uint64 // changes whenever Path is swapped
	Agents  *world.Snapshot
}

// Planner proposes an action id from the controller's ActionTable.
type Planner interface {
	ProposeAction(in PlannerInput) int
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(in PlannerInput) int

func (f PlannerFunc) ProposeAction(in PlannerInput) int { return f(in) }

// AgentSource supplies the agent snapshot. *world.Tracker implements it.
type AgentSource interface {
	Snapshot() *world.Snapshot
}

// View is the state a tick is decided on: the refreshed pose plus the path
// and agent snapshot loaded once at the start of the tick.
type View struct {
	Pose   world.Pose
	Path   *path.Path
	Agents *world.Snapshot
}

// GoalChecker decides whether the mission goal has been reached.
type GoalChecker interface {
	GoalReached(v View) bool
}

// GoalFunc adapts a function to GoalChecker.
type GoalFunc func(View) bool

func (f GoalFunc) GoalReached(v View) bool { return f(v) }

// EmergencySignal is a stop request. Signals that depend on the world
// must read it from v, never from their own source.
type EmergencySignal interface {
	EmergencyAsserted(v View) bool
}

// EmergencyFunc adapts a function to EmergencySignal.
type EmergencyFunc func(View) bool

func (f EmergencyFunc) EmergencyAsserted(v View) bool { return f(v) }

// Command is the output of one tick.
type Command struct {
	Tick        uint64
	TargetSpeed float64 // m/s; EmergencyStopSpeed requests a hard stop
	Steer       float64 // radians
	Accel       float64 // acceleration of the chosen action, m/s²
	CurSpeed    float64 // real speed when the command was computed
}

// EmergencyStopSpeed is the target speed sent while an emergency is
// asserted: stop as fast as configured deceleration allows.
const EmergencyStopSpeed = -1.0

// CommandSink receives commands. Publish must not block the tick.
type CommandSink interface {
	Publish(cmd Command) error
}

// TickResult describes one completed tick.
type TickResult struct {
	Tick     uint64
	Time     time.Time
	Mode     Mode
	Vehicle  world.VehicleState
	Proposed Action
	Executed Action
	Command  Command
	// Published is false when the tick issued no command.
	Published bool
	Reward    float64
	// CollisionAgent is the id of the agent that triggered a collision
	// override, or -1.
	CollisionAgent int
	// Completed is set on the tick that ends a goal-reached run.
	Completed bool
}

// Observer is notified after every tick.
type Observer interface {
	ObserveTick(r TickResult)
}

// Observers fans a tick result out to each non-nil observer in order.
type Observers []Observer

// ObserveTick implements Observer.
func (o Observers) ObserveTick(r TickResult) {
	for _, ob := range o {
		if ob != nil {
			ob.ObserveTick(r)
		}
	}
}
