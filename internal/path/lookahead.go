package path

import "github.com/banshee-data/crowd-drive/internal/geom"

// Lookahead picks the pursuit target a fixed arc length ahead of the
// vehicle's nearest waypoint. The last result is reused while the nearest
// index does not change, so the target does not jitter between ticks.
// Call Reset whenever the underlying path is replaced.
type Lookahead struct {
	Ahead float64 // metres ahead of the nearest waypoint

	valid   bool
	lastIdx int
	target  geom.Point
	yaw     float64
}

// Target returns the look-ahead waypoint and the path heading there.
// ok is false for an empty path.
func (l *Lookahead) Target(p Path, pos geom.Point) (target geom.Point, yaw float64, ok bool) {
	i := p.Nearest(pos)
	if i < 0 {
		return geom.Point{}, 0, false
	}
	if l.valid && i == l.lastIdx {
		return l.target, l.yaw, true
	}
	j := p.Forward(i, l.Ahead)
	l.valid = true
	l.lastIdx = i
	l.target = p.Points[j]
	l.yaw = p.Yaw(j)
	return l.target, l.yaw, true
}

// Reset drops the cached target.
func (l *Lookahead) Reset() {
	l.valid = false
}
