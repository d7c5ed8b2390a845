package safety

import "github.com/banshee-data/crowd-drive/internal/geom"

// Xor is exclusive or.
func Xor(a, b bool) bool { return a != b }

func orient(p0, p1, p2 geom.Point) float64 {
	return geom.Cross(geom.Pt(p1.X-p0.X, p1.Y-p0.Y), geom.Pt(p2.X-p1.X, p2.Y-p1.Y))
}

// IsCcw reports whether p0→p1→p2 turns counter-clockwise, i.e. p2 lies
// strictly left of the directed line p0→p1.
func IsCcw(p0, p1, p2 geom.Point) bool {
	return orient(p0, p1, p2) > 0
}

// IsIntersecting reports whether segment p0-p1 properly crosses q0-q1.
// Collinear and endpoint-touching cases are not intersections.
func IsIntersecting(p0, p1, q0, q1 geom.Point) bool {
	return Xor(IsCcw(p0, p1, q0), IsCcw(p0, p1, q1)) &&
		Xor(IsCcw(q0, q1, p0), IsCcw(q0, q1, p1))
}

// InPolygon reports whether p lies inside or on the boundary of the convex
// polygon poly, whose vertices must be in counter-clockwise order.
func InPolygon(p geom.Point, poly []geom.Point) bool {
	if len(poly) < 3 {
		return false
	}
	for i := range poly {
		if orient(poly[i], poly[(i+1)%len(poly)], p) < 0 {
			return false
		}
	}
	return true
}

// InCollision reports whether two counter-clockwise convex rectangles
// overlap, judged by whether either contains a vertex of the other.
//
// This misses two rectangles that cross like a plus sign with no vertex
// of either inside the other. Margin sizes are tuned with that in mind;
// use IsIntersecting on the edges when an exact answer is needed.
func InCollision(a, b []geom.Point) bool {
	for _, v := range a {
		if InPolygon(v, b) {
			return true
		}
	}
	for _, v := range b {
		if InPolygon(v, a) {
			return true
		}
	}
	return false
}
