// Package world holds the vehicle and agent state model: the ego pose and
// speed, and the tracked pedestrians and vehicles around it.
//
// Agent data arrives asynchronously. The Tracker folds it into an immutable
// Snapshot that readers load atomically, so a control tick never observes a
// partial update.
package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
)

// ErrUnknownAgentKind is returned for an agent whose type tag is not
// recognised. The entry is dropped.
var ErrUnknownAgentKind = errors.New("unknown agent type")

// Pose is a position and a heading in [0, 2π).
type Pose struct {
	Pos     geom.Point
	Heading float64
}

// Dir returns the unit heading vector.
func (p Pose) Dir() geom.Point { return geom.Unit(p.Heading) }

// VehicleState is the ego vehicle as last sensed.
type VehicleState struct {
	Pose
	Speed float64 // forward speed, m/s
	Time  time.Time
}

// AgentKind classifies a tracked agent.
type AgentKind uint8

const (
	Pedestrian AgentKind = iota + 1
	Vehicle
)

func (k AgentKind) String() string {
	switch k {
	case Pedestrian:
		return "pedestrian"
	case Vehicle:
		return "vehicle"
	default:
		return fmt.Sprintf("AgentKind(%d)", uint8(k))
	}
}

// ParseKind maps a wire type tag to a kind. "ped" is a pedestrian; "car"
// and "bike" are vehicles.
func ParseKind(tag string) (AgentKind, error) {
	switch tag {
	case "ped":
		return Pedestrian, nil
	case "car", "bike":
		return Vehicle, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownAgentKind, tag)
	}
}

// Agent is one tracked pedestrian or vehicle.
type Agent struct {
	ID         int
	Kind       AgentKind
	Pos        geom.Point
	Heading    float64
	HasHeading bool
	BBox       []geom.Point // vehicles only

	// Candidate future paths from the prediction module.
	Paths          []path.Path
	ResetIntention bool
	CrossDir       bool // pedestrians: crossing to the left

	Updated     time.Time
	PathUpdated time.Time
}

// clone returns a deep copy so snapshots never alias tracker state.
func (a *Agent) clone() Agent {
	c := *a
	if a.BBox != nil {
		c.BBox = append([]geom.Point(nil), a.BBox...)
	}
	if a.Paths != nil {
		c.Paths = make([]path.Path, len(a.Paths))
		for i, p := range a.Paths {
			c.Paths[i] = path.New(p.Step, p.Points...)
		}
	}
	return c
}

// Snapshot is an immutable view of every tracked agent at one instant.
// Agents are sorted by ID.
type Snapshot struct {
	Agents []Agent
	Time   time.Time
}

// Len returns the number of agents, treating a nil snapshot as empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Agents)
}

// Get returns the agent with the given id.
func (s *Snapshot) Get(id int) (Agent, bool) {
	if s == nil {
		return Agent{}, false
	}
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// Nearest returns the agent closest to pos and its distance. ok is false
// when there are no agents.
func (s *Snapshot) Nearest(pos geom.Point) (a Agent, dist float64, ok bool) {
	if s.Len() == 0 {
		return Agent{}, 0, false
	}
	best := 0
	bestD := geom.Distance(pos, s.Agents[0].Pos)
	for i := 1; i < len(s.Agents); i++ {
		if d := geom.Distance(pos, s.Agents[i].Pos); d < bestD {
			best, bestD = i, d
		}
	}
	return s.Agents[best], bestD, true
}
