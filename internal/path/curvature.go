package path

import (
	"github.com/banshee-data/crowd-drive/internal/geom"
)

// Curvature returns the signed curvature (1/m) at index i, estimated from
// the circle through the waypoints one metre behind, at, and one metre
// ahead of i. Left turns are positive. Degenerate triples give 0.
func (p Path) Curvature(i int) float64 {
	if p.Len() < 3 {
		return 0
	}
	i = p.Clamp(i)
	span := p.Forward(0, 1.0)
	if span < 1 {
		span = 1
	}
	a := p.At(i - span)
	b := p.At(i)
	c := p.At(i + span)

	ab := geom.Distance(a, b)
	bc := geom.Distance(b, c)
	ca := geom.Distance(c, a)
	if ab == 0 || bc == 0 || ca == 0 {
		return 0
	}
	cross := geom.Cross(geom.Pt(b.X-a.X, b.Y-a.Y), geom.Pt(c.X-b.X, c.Y-b.Y))
	return 2 * cross / (ab * bc * ca)
}

// LateralOffset returns the signed perpendicular offset of pos from the path
// at its nearest waypoint. Positive values are left of the travel direction.
// An empty path yields 0.
func (p Path) LateralOffset(pos geom.Point) float64 {
	i := p.Nearest(pos)
	if i < 0 {
		return 0
	}
	ref := p.Points[i]
	return geom.Cross(geom.Unit(p.Yaw(i)), geom.Pt(pos.X-ref.X, pos.Y-ref.Y))
}
