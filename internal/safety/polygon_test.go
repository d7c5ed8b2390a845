package safety

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/crowd-drive/internal/geom"
)

func box(cx, cy, halfW, halfH float64) []geom.Point {
	return []geom.Point{
		geom.Pt(cx+halfW, cy+halfH),
		geom.Pt(cx-halfW, cy+halfH),
		geom.Pt(cx-halfW, cy-halfH),
		geom.Pt(cx+halfW, cy-halfH),
	}
}

func TestXor(t *testing.T) {
	assert.False(t, Xor(false, false))
	assert.True(t, Xor(true, false))
	assert.True(t, Xor(false, true))
	assert.False(t, Xor(true, true))
}

func TestIsCcw(t *testing.T) {
	assert.True(t, IsCcw(geom.Pt(0, 0), geom.Pt(1, 0), geom.Pt(2, 1)))
	assert.False(t, IsCcw(geom.Pt(0, 0), geom.Pt(1, 0), geom.Pt(2, -1)))
	assert.False(t, IsCcw(geom.Pt(0, 0), geom.Pt(1, 0), geom.Pt(2, 0)), "collinear is not ccw")
}

func TestIsIntersecting(t *testing.T) {
	assert.True(t, IsIntersecting(geom.Pt(0, 0), geom.Pt(2, 2), geom.Pt(0, 2), geom.Pt(2, 0)))
	assert.False(t, IsIntersecting(geom.Pt(0, 0), geom.Pt(1, 1), geom.Pt(3, 0), geom.Pt(3, 5)))
	assert.False(t, IsIntersecting(geom.Pt(0, 0), geom.Pt(2, 0), geom.Pt(1, 0), geom.Pt(3, 0)), "collinear overlap")
	assert.False(t, IsIntersecting(geom.Pt(0, 0), geom.Pt(1, 1), geom.Pt(1, 1), geom.Pt(2, 0)), "shared endpoint")
}

func TestInPolygon(t *testing.T) {
	sq := box(0, 0, 1, 1)
	assert.True(t, InPolygon(geom.Pt(0, 0), sq))
	assert.True(t, InPolygon(geom.Pt(1, 0), sq), "edge counts as inside")
	assert.True(t, InPolygon(geom.Pt(1, 1), sq), "vertex counts as inside")
	assert.False(t, InPolygon(geom.Pt(1.01, 0), sq))
	assert.False(t, InPolygon(geom.Pt(0, 0), sq[:2]), "degenerate polygon")

	// Clockwise input is rejected for interior points.
	cw := []geom.Point{sq[3], sq[2], sq[1], sq[0]}
	assert.False(t, InPolygon(geom.Pt(0, 0), cw))
}

func TestInCollision_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 300; trial++ {
		pos := geom.Pt(rng.Float64()*20-10, rng.Float64()*20-10)
		heading := rng.Float64() * 2 * math.Pi
		m := Margins{Front: 0.5 + rng.Float64()*3, Back: 0.5 + rng.Float64()*3, Side: 0.5 + rng.Float64()*2}
		a := ZoneRect(pos, heading, m)

		assert.True(t, InCollision(a, a), "identical, trial %d", trial)

		inner := ZoneRect(pos, heading, Margins{Front: m.Front / 2, Back: m.Back / 2, Side: m.Side / 2})
		assert.True(t, InCollision(a, inner), "contained, trial %d", trial)
		assert.True(t, InCollision(inner, a), "containing, trial %d", trial)

		// Separate by more than both circumradii.
		reach := m.Front + m.Back + 2*m.Side
		far := geom.Pt(pos.X+2*reach+1, pos.Y)
		b := ZoneRect(far, rng.Float64()*2*math.Pi, m)
		assert.False(t, InCollision(a, b), "separated, trial %d", trial)
	}
}

func TestInCollision_Overlap(t *testing.T) {
	a := box(0, 0, 1, 1)
	b := box(1.5, 1.5, 1, 1)
	assert.True(t, InCollision(a, b))
	assert.True(t, InCollision(b, a))
}

// Two rectangles crossing like a plus sign overlap in the middle but
// neither holds a vertex of the other. InCollision reports no collision;
// the edges do intersect.
func TestInCollision_CrossingRectanglesMissed(t *testing.T) {
	horizontal := box(0, 0, 3, 0.5)
	vertical := box(0, 0, 0.5, 3)

	assert.False(t, InCollision(horizontal, vertical))

	crossed := false
	for i := range horizontal {
		for j := range vertical {
			if IsIntersecting(horizontal[i], horizontal[(i+1)%4], vertical[j], vertical[(j+1)%4]) {
				crossed = true
			}
		}
	}
	assert.True(t, crossed, "edges do cross")
}
