// Package geom provides the 2D point primitives shared by the path engine,
// the safety-zone model and the controller.
//
// Points are gonum r2 vectors so callers can mix the helpers here with the
// wider r2 API (Add, Sub, Scale, Rotate).
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a position or direction in the site frame (metres).
type Point = r2.Vec

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return Length(r2.Sub(b, a))
}

// Length returns the Euclidean norm of p. It is computed as sqrt(x²+y²)
// rather than via Hypot so results match the squared-length comparisons
// used by the safety predicates.
func Length(p Point) float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Dot returns the dot product a·b.
func Dot(a, b Point) float64 { return r2.Dot(a, b) }

// Cross returns the z component of a×b.
func Cross(a, b Point) float64 { return r2.Cross(a, b) }

// Angle returns the polar angle of p in [0, 2π).
func Angle(p Point) float64 {
	return CapAngle(math.Atan2(p.Y, p.X))
}

// SlopeAngle returns the raw atan2 direction from a to b, in [-π, π].
func SlopeAngle(a, b Point) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// CapAngle wraps x into [0, 2π).
func CapAngle(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	// Mod of a tiny negative number can round up to exactly 2π.
	if x >= 2*math.Pi {
		x = 0
	}
	return x
}

// Unit returns the unit vector pointing at angle a.
func Unit(a float64) Point {
	return Point{X: math.Cos(a), Y: math.Sin(a)}
}

// AngleDiff returns the signed smallest rotation taking b onto a, in (-π, π].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
