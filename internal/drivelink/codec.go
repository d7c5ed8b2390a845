package drivelink

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/world"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types on the wire.
const (
	TypePose       = "pose"
	TypeOdom       = "odom"
	TypeAgents     = "agents"
	TypeAgentPaths = "agent_paths"
	TypePlan       = "plan"
	TypeEmergency  = "emergency"
	TypeCommand    = "cmd"
)

// ErrUnknownMessage is returned by Decode for an unrecognised type.
var ErrUnknownMessage = errors.New("unknown message type")

// XY is a point on the wire.
type XY [2]float64

func (p XY) point() geom.Point { return geom.Pt(p[0], p[1]) }

func points(xs []XY) []geom.Point {
	if len(xs) == 0 {
		return nil
	}
	out := make([]geom.Point, len(xs))
	for i, p := range xs {
		out[i] = p.point()
	}
	return out
}

// Message is an inbound line. Only the fields for Type are meaningful.
type Message struct {
	Type string `json:"type"`

	// pose, odom
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Heading float64 `json:"heading,omitempty"`
	// Stamp is the measurement time in unix seconds; zero means on receipt.
	Stamp float64 `json:"stamp,omitempty"`
	VX    float64 `json:"vx,omitempty"`
	VY    float64 `json:"vy,omitempty"`

	Agents     []AgentMsg     `json:"agents,omitempty"`
	AgentPaths []AgentPathMsg `json:"paths,omitempty"`

	// plan
	Points []XY `json:"points,omitempty"`
	Splice bool `json:"splice,omitempty"`

	// emergency
	Asserted bool `json:"asserted,omitempty"`
}

// AgentMsg is one tracked agent.
type AgentMsg struct {
	ID      int      `json:"id"`
	Type    string   `json:"type"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Heading *float64 `json:"heading,omitempty"`
	BBox    []XY     `json:"bbox,omitempty"`
}

// AgentPathMsg carries the predicted paths of one agent.
type AgentPathMsg struct {
	ID             int    `json:"id"`
	Type           string `json:"type"`
	Paths          [][]XY `json:"paths"`
	ResetIntention bool   `json:"reset_intention,omitempty"`
	CrossDir       bool   `json:"cross_dir,omitempty"`
}

// Decode parses one inbound line.
func Decode(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("decode link message: %w", err)
	}
	switch m.Type {
	case TypePose, TypeOdom, TypeAgents, TypeAgentPaths, TypePlan, TypeEmergency:
		return m, nil
	default:
		return Message{}, fmt.Errorf("%w %q", ErrUnknownMessage, m.Type)
	}
}

// StampTime returns the measurement time, or fallback when unset.
func (m Message) StampTime(fallback time.Time) time.Time {
	if m.Stamp <= 0 {
		return fallback
	}
	sec := int64(m.Stamp)
	return time.Unix(sec, int64((m.Stamp-float64(sec))*1e9))
}

// Pose returns the pose carried by a pose message, heading in [0, 2π).
func (m Message) Pose() world.Pose {
	return world.Pose{Pos: geom.Pt(m.X, m.Y), Heading: geom.CapAngle(m.Heading)}
}

// Observations converts an agents message.
func (m Message) Observations() []world.Observation {
	obs := make([]world.Observation, 0, len(m.Agents))
	for _, a := range m.Agents {
		o := world.Observation{ID: a.ID, Type: a.Type, Pos: geom.Pt(a.X, a.Y), BBox: points(a.BBox)}
		if a.Heading != nil {
			o.Heading, o.HasHeading = geom.CapAngle(*a.Heading), true
		}
		obs = append(obs, o)
	}
	return obs
}

// PathUpdates converts an agent_paths message.
func (m Message) PathUpdates() []world.PathUpdate {
	ups := make([]world.PathUpdate, 0, len(m.AgentPaths))
	for _, a := range m.AgentPaths {
		u := world.PathUpdate{ID: a.ID, Type: a.Type, ResetIntention: a.ResetIntention, CrossDir: a.CrossDir}
		for _, p := range a.Paths {
			u.Paths = append(u.Paths, path.Path{Points: points(p)})
		}
		ups = append(ups, u)
	}
	return ups
}

// Plan returns the path carried by a plan message. The step is left for
// the controller to set.
func (m Message) Plan() path.Path {
	return path.Path{Points: points(m.Points)}
}

// CommandMsg is the outbound per-tick command.
type CommandMsg struct {
	Type        string  `json:"type"`
	Tick        uint64  `json:"tick"`
	TargetSpeed float64 `json:"target_speed"`
	Steer       float64 `json:"steer"`
	Acc         float64 `json:"acc"`
	CurSpeed    float64 `json:"cur_speed"`
}

// EncodeCommand renders cmd as one wire line without the newline.
func EncodeCommand(cmd control.Command) ([]byte, error) {
	return json.Marshal(CommandMsg{
		Type:        TypeCommand,
		Tick:        cmd.Tick,
		TargetSpeed: cmd.TargetSpeed,
		Steer:       cmd.Steer,
		Acc:         cmd.Accel,
		CurSpeed:    cmd.CurSpeed,
	})
}
