// Package path owns the reference path the vehicle follows.
//
// A Path is an ordered waypoint sequence (travel order) with a fixed
// resampling step. All index operations clamp to valid bounds; the only
// precondition is that the path is non-empty, which callers check with
// Validate before relying on Nearest or MinDist.
package path

import (
	"errors"
	"math"

	"github.com/banshee-data/crowd-drive/internal/geom"
)

// ErrEmptyPath is returned by Validate for a path with no waypoints.
var ErrEmptyPath = errors.New("path has no waypoints")

// Rounding tolerance used by Forward when converting arc length to a step
// count. A fractional remainder above 1-forwardEpsilon rounds up.
const forwardEpsilon = 1e-5

// Look-ahead used by CurDir, in waypoints.
const curDirLookahead = 150

// Look-behind used by Yaw when the forward look-ahead collapses at the end.
const yawLookbehind = 3

// Path is an ordered list of waypoints with a uniform target spacing Step
// (metres). Methods never modify the receiver; Interpolate and CutJoin
// return new paths so a path can be shared across goroutines once built.
type Path struct {
	Step   float64
	Points []geom.Point
}

// New builds a Path over a copy of pts.
func New(step float64, pts ...geom.Point) Path {
	cp := make([]geom.Point, len(pts))
	copy(cp, pts)
	return Path{Step: step, Points: cp}
}

// Len returns the number of waypoints.
func (p Path) Len() int { return len(p.Points) }

// Empty reports whether the path has no waypoints.
func (p Path) Empty() bool { return len(p.Points) == 0 }

// Validate returns ErrEmptyPath when the path has no waypoints.
func (p Path) Validate() error {
	if p.Empty() {
		return ErrEmptyPath
	}
	return nil
}

// LastIndex returns the index of the final waypoint, or -1 when empty.
func (p Path) LastIndex() int { return len(p.Points) - 1 }

// Clamp limits i to [0, LastIndex]. It returns -1 for an empty path.
func (p Path) Clamp(i int) int {
	if p.Empty() {
		return -1
	}
	if i < 0 {
		return 0
	}
	if last := p.LastIndex(); i > last {
		return last
	}
	return i
}

// At returns the waypoint at the clamped index i. An empty path yields the
// zero point.
func (p Path) At(i int) geom.Point {
	i = p.Clamp(i)
	if i < 0 {
		return geom.Point{}
	}
	return p.Points[i]
}

// Nearest returns the index of the waypoint closest to pos. Ties resolve to
// the lowest index. It returns -1 for an empty path.
func (p Path) Nearest(pos geom.Point) int {
	if p.Empty() {
		return -1
	}
	imin := 0
	dmin := geom.Distance(pos, p.Points[0])
	for i := 1; i < len(p.Points); i++ {
		if d := geom.Distance(pos, p.Points[i]); d < dmin {
			dmin = d
			imin = i
		}
	}
	return imin
}

// MinDist returns the distance from pos to its nearest waypoint, or +Inf
// for an empty path.
func (p Path) MinDist(pos geom.Point) float64 {
	i := p.Nearest(pos)
	if i < 0 {
		return math.Inf(1)
	}
	return geom.Distance(p.Points[i], pos)
}

// Forward returns the index reached by advancing arcLen metres from index i,
// assuming uniform spacing of Step. The result never passes the last index.
func (p Path) Forward(i int, arcLen float64) int {
	if p.Empty() {
		return -1
	}
	i = p.Clamp(i)
	step := arcLen / p.Step
	switch {
	case math.IsNaN(step):
		return i
	case step >= float64(p.LastIndex()-i):
		return p.LastIndex()
	case step <= float64(-i):
		return 0
	}
	n := int(step)
	if step-float64(n) > 1.0-forwardEpsilon {
		n++
	}
	return p.Clamp(i + n)
}

// Yaw returns the heading at index i in [0, 2π), taken as the direction to
// the point one metre ahead. Near the end of the path the look-ahead
// collapses onto i, so the direction is taken from a few waypoints behind.
func (p Path) Yaw(i int) float64 {
	if p.Empty() {
		return 0
	}
	i = p.Clamp(i)
	j := p.Forward(i, 1.0)
	if i == j {
		i = max(0, i-yawLookbehind)
	}
	from, to := p.Points[i], p.Points[j]
	return geom.Angle(geom.Pt(to.X-from.X, to.Y-from.Y))
}

// Interpolate resamples the path at spacing Step, walking the polyline
// segment by segment. Sampling stops once the resampled length reaches
// maxLen. The source's final waypoint is always appended so the result ends
// where the source ends. Consecutive duplicates are never emitted.
func (p Path) Interpolate(maxLen float64) Path {
	out := Path{Step: p.Step}
	if p.Empty() {
		return out
	}

	push := func(pt geom.Point) {
		if n := len(out.Points); n > 0 && out.Points[n-1] == pt {
			return
		}
		out.Points = append(out.Points, pt)
	}

	var t, ti float64
walk:
	for i := 0; i < len(p.Points)-1; i++ {
		a, b := p.Points[i], p.Points[i+1]
		d := geom.Distance(a, b)
		if d == 0 {
			continue
		}
		dx := (b.X - a.X) / d
		dy := (b.Y - a.Y) / d
		for t < ti+d {
			u := t - ti
			push(geom.Pt(a.X+dx*u, a.Y+dy*u))
			t += p.Step
			if float64(len(out.Points))*p.Step >= maxLen {
				break walk
			}
		}
		ti += d
	}
	push(p.Points[len(p.Points)-1])
	return out
}

// CutJoin splices next onto the path. The retained prefix ends one waypoint
// before the waypoint nearest to next's first point; everything from there
// on is replaced by next. An empty next leaves the path unchanged.
func (p Path) CutJoin(next Path) Path {
	if next.Empty() {
		return New(p.Step, p.Points...)
	}
	i := max(0, p.Nearest(next.Points[0])-1)
	pts := make([]geom.Point, 0, i+len(next.Points))
	pts = append(pts, p.Points[:i]...)
	pts = append(pts, next.Points...)
	return Path{Step: p.Step, Points: pts}
}

// Length returns the polyline length from index start to the end.
func (p Path) Length(start int) float64 {
	var l float64
	for i := max(0, start); i < len(p.Points)-1; i++ {
		l += geom.Distance(p.Points[i], p.Points[i+1])
	}
	return l
}

// CurDir returns a smoothed local heading at index i: the raw direction
// (in [-π, π]) from waypoint i to the waypoint 150 indices ahead, clamped to
// the end of the path.
func (p Path) CurDir(i int) float64 {
	if p.Empty() {
		return 0
	}
	i = p.Clamp(i)
	end := min(i+curDirLookahead, p.LastIndex())
	return geom.SlopeAngle(p.Points[i], p.Points[end])
}

// CrossDir returns the unit vector perpendicular to CurDir(i), pointing
// left when left is true and right otherwise.
func (p Path) CrossDir(i int, left bool) geom.Point {
	dir := p.CurDir(i)
	if left {
		dir += math.Pi / 2
	} else {
		dir -= math.Pi / 2
	}
	return geom.Unit(geom.CapAngle(dir))
}
