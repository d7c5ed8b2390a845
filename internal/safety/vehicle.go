package safety

import (
	"fmt"
	"math"

	"github.com/banshee-data/crowd-drive/internal/geom"
)

// Geometry describes the ego vehicle and the clearances applied around it
// (metres).
type Geometry struct {
	Width       float64
	Length      float64
	Front       float64 // reference point to front bumper
	SideMargin  float64
	FrontMargin float64
	AgentSize   float64 // physical radius assumed for other agents
}

// Profile selects which margin set a vehicle model produces.
type Profile uint8

const (
	// ProfileSafety adds the agent-size buffer. Used for proactive
	// checks and reward penalties.
	ProfileSafety Profile = iota
	// ProfileReal is the physical footprint. Used to detect actual contact.
	ProfileReal
)

func (p Profile) String() string {
	switch p {
	case ProfileSafety:
		return "safety"
	case ProfileReal:
		return "real"
	default:
		return fmt.Sprintf("Profile(%d)", uint8(p))
	}
}

// VehicleModel is one of the supported vehicle geometries.
type VehicleModel uint8

const (
	PomdpCar VehicleModel = iota
	AudiR8
	Carla

	numModels
)

type modelSpec struct {
	name    string
	margins func(g Geometry, p Profile) Margins
}

var models = [numModels]modelSpec{
	PomdpCar: {"pomdp_car", pomdpCarMargins},
	AudiR8:   {"audi_r8", audiR8Margins},
	Carla:    {"carla", carlaMargins},
}

// ParseVehicleModel maps a configuration name to its model.
func ParseVehicleModel(name string) (VehicleModel, error) {
	for i, m := range models {
		if m.name == name {
			return VehicleModel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown vehicle model %q", name)
}

// VehicleModels returns every supported model.
func VehicleModels() []VehicleModel {
	out := make([]VehicleModel, numModels)
	for i := range out {
		out[i] = VehicleModel(i)
	}
	return out
}

func (m VehicleModel) String() string {
	if m < numModels {
		return models[m].name
	}
	return fmt.Sprintf("VehicleModel(%d)", uint8(m))
}

// Margins returns the zone extents for the model under profile p. An
// unknown model yields zero margins.
func (m VehicleModel) Margins(g Geometry, p Profile) Margins {
	if m >= numModels {
		return Margins{}
	}
	return models[m].margins(g, p)
}

// SafetyMargins is shorthand for Margins(g, ProfileSafety).
func (m VehicleModel) SafetyMargins(g Geometry) Margins { return m.Margins(g, ProfileSafety) }

// RealMargins is shorthand for Margins(g, ProfileReal).
func (m VehicleModel) RealMargins(g Geometry) Margins { return m.Margins(g, ProfileReal) }

// The reference point sits at the front of the car; the zone extends back
// over its full length.
func pomdpCarMargins(g Geometry, p Profile) Margins {
	if p == ProfileReal {
		return Margins{
			Side:  g.Width/2 + g.AgentSize,
			Front: g.AgentSize,
			Back:  g.Length + g.AgentSize,
		}
	}
	return Margins{
		Side:  g.Width/2 + g.SideMargin + g.AgentSize,
		Front: g.FrontMargin + g.AgentSize,
		Back:  g.Length + g.SideMargin + g.AgentSize,
	}
}

// Fixed body dimensions; the configured geometry is ignored.
func audiR8Margins(_ Geometry, p Profile) Margins {
	if p == ProfileReal {
		return Margins{Side: 1.9 / 2, Front: 3.6, Back: 0.8}
	}
	return Margins{Side: 2.0/2 + 0.1, Front: 3.6, Back: 0.8 + 0.1}
}

// Reference point at the vehicle centre, Front metres from either end.
func carlaMargins(g Geometry, p Profile) Margins {
	if p == ProfileReal {
		return Margins{
			Side:  g.Width / 2,
			Front: g.Front,
			Back:  g.Front,
		}
	}
	return Margins{
		Side:  g.Width/2 + g.SideMargin + g.AgentSize,
		Front: g.Front + g.FrontMargin + g.AgentSize,
		Back:  g.Front + g.SideMargin + g.AgentSize,
	}
}

// EgoDimensions derives width and length from the corners of a bounding box
// around a vehicle at pos with the given heading: each is twice the largest
// absolute corner projection onto the lateral or longitudinal axis.
func EgoDimensions(pos geom.Point, heading float64, corners []geom.Point) (width, length float64) {
	along := geom.Unit(heading)
	tan := geom.Pt(-along.Y, along.X)
	for _, c := range corners {
		rel := geom.Pt(c.X-pos.X, c.Y-pos.Y)
		width = math.Max(width, math.Abs(geom.Dot(rel, tan)))
		length = math.Max(length, math.Abs(geom.Dot(rel, along)))
	}
	return 2 * width, 2 * length
}

// WithBBox returns g with Width, Length and Front taken from a bounding
// box. Front is half the length, i.e. the reference is the box centre.
func (g Geometry) WithBBox(pos geom.Point, heading float64, corners []geom.Point) Geometry {
	if len(corners) == 0 {
		return g
	}
	g.Width, g.Length = EgoDimensions(pos, heading, corners)
	g.Front = g.Length / 2
	return g
}
