// Package safety implements the vehicle safety-zone and collision
// predicates. Everything here is a pure function of geometry: no state, no
// I/O, identical inputs give identical results.
//
// The zone is an oriented rectangle anchored at the vehicle reference point
// H and aligned to the heading direction HN:
//
//	A-----------N-----------B
//	|           ^           |
//	|     |-L<--H-----|     |
//	|     |     M     |     |
//	|     |-----------|     |
//	D-----------------------C
//
// A point M is inside ABCD iff its longitudinal projection HM·HN lies within
// [-back, front] and its lateral projection HM·HL lies within [-side, side].
package safety

import (
	"math"

	"github.com/banshee-data/crowd-drive/internal/geom"
)

// Margins are the extents of the zone rectangle from the reference point
// (metres). All three are expected to be non-negative.
type Margins struct {
	Front float64
	Back  float64
	Side  float64
}

// InRectangle reports whether rel, a point relative to the vehicle
// reference point, lies in the zone rectangle aligned to dir. dir need not
// be unit length; the comparisons are done on squared projections scaled by
// |dir|² so no square root is taken. Points exactly on the boundary are
// inside.
func InRectangle(dir, rel geom.Point, m Margins) bool {
	tan := geom.Pt(-dir.Y, dir.X) // dir rotated 90° anticlockwise

	proj := geom.Dot(rel, dir)
	denom := geom.Dot(dir, dir)
	if proj >= 0 && proj*proj > denom*m.Front*m.Front {
		return false
	}
	if proj <= 0 && proj*proj > denom*m.Back*m.Back {
		return false
	}

	lat := geom.Dot(rel, tan)
	return lat*lat <= geom.Dot(tan, tan)*m.Side*m.Side
}

// InFrontRectangle is InRectangle restricted to the part of the zone
// strictly ahead of the reference point. Back is ignored.
func InFrontRectangle(dir, rel geom.Point, m Margins) bool {
	tan := geom.Pt(-dir.Y, dir.X)

	proj := geom.Dot(rel, dir)
	if proj <= 0 {
		return false
	}
	if proj*proj > geom.Dot(dir, dir)*m.Front*m.Front {
		return false
	}

	lat := geom.Dot(rel, tan)
	return lat*lat <= geom.Dot(tan, tan)*m.Side*m.Side
}

// InZone reports whether pt lies in the zone of a vehicle at pos facing
// heading (radians).
func InZone(pos geom.Point, heading float64, pt geom.Point, m Margins) bool {
	return InRectangle(geom.Unit(heading), geom.Pt(pt.X-pos.X, pt.Y-pos.Y), m)
}

// ZoneRect returns the corners of the zone rectangle in counter-clockwise
// order: front-left, back-left, back-right, front-right.
func ZoneRect(pos geom.Point, heading float64, m Margins) []geom.Point {
	fwd := geom.Unit(heading)
	left := geom.Pt(-fwd.Y, fwd.X)
	at := func(lon, lat float64) geom.Point {
		return geom.Pt(pos.X+fwd.X*lon+left.X*lat, pos.Y+fwd.Y*lon+left.Y*lat)
	}
	return []geom.Point{
		at(m.Front, m.Side),
		at(-m.Back, m.Side),
		at(-m.Back, -m.Side),
		at(m.Front, -m.Side),
	}
}

// ComputeRect builds a rectangle from polar offsets around pos. The front
// corners sit refToFront from pos at ±frontAngle off the heading, the back
// corners refToBack from pos at ±backAngle off the reversed heading. Corner
// order matches ZoneRect.
func ComputeRect(pos geom.Point, heading, refToFront, refToBack, frontAngle, backAngle float64) []geom.Point {
	polar := func(r, a float64) geom.Point {
		return geom.Pt(pos.X+r*math.Cos(a), pos.Y+r*math.Sin(a))
	}
	return []geom.Point{
		polar(refToFront, heading+frontAngle),
		polar(refToBack, heading+math.Pi-backAngle),
		polar(refToBack, heading+math.Pi+backAngle),
		polar(refToFront, heading-frontAngle),
	}
}
