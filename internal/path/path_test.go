package path

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowd-drive/internal/geom"
)

func straight(step float64, n int) Path {
	pts := make([]geom.Point, n)
	for i := range pts {
		pts[i] = geom.Pt(float64(i)*step, 0)
	}
	return New(step, pts...)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Path{Step: 1}.Validate(), ErrEmptyPath)
	assert.NoError(t, New(1, geom.Pt(0, 0)).Validate())
}

func TestNearest_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(40)
		pts := make([]geom.Point, n)
		for i := range pts {
			// Coarse grid so ties actually happen.
			pts[i] = geom.Pt(float64(rng.Intn(10)), float64(rng.Intn(10)))
		}
		p := New(1, pts...)
		pos := geom.Pt(rng.Float64()*12-1, rng.Float64()*12-1)

		want := 0
		for i := range pts {
			if geom.Distance(pos, pts[i]) < geom.Distance(pos, pts[want]) {
				want = i
			}
		}
		require.Equal(t, want, p.Nearest(pos), "trial %d", trial)
		assert.Equal(t, geom.Distance(pos, pts[want]), p.MinDist(pos))
	}
}

func TestNearest_TieTakesLowestIndex(t *testing.T) {
	p := New(1, geom.Pt(1, 0), geom.Pt(-1, 0), geom.Pt(0, 1))
	assert.Equal(t, 0, p.Nearest(geom.Pt(0, 0)))
}

func TestNearest_EmptyPath(t *testing.T) {
	p := Path{Step: 1}
	assert.Equal(t, -1, p.Nearest(geom.Pt(0, 0)))
	assert.True(t, math.IsInf(p.MinDist(geom.Pt(0, 0)), 1))
}

func TestForward(t *testing.T) {
	p := straight(0.1, 50)

	t.Run("zero arc length stays put", func(t *testing.T) {
		for i := 0; i < p.Len(); i++ {
			assert.Equal(t, i, p.Forward(i, 0))
		}
	})

	t.Run("huge arc length clamps to last", func(t *testing.T) {
		for _, arc := range []float64{1e9, 1e18, 1e20, 1e300, math.MaxFloat64, math.Inf(1)} {
			for i := 0; i < p.Len(); i++ {
				assert.Equal(t, p.LastIndex(), p.Forward(i, arc), "i=%d arc=%g", i, arc)
			}
		}
	})

	t.Run("huge negative arc length clamps to first", func(t *testing.T) {
		for _, arc := range []float64{-1e18, -math.MaxFloat64, math.Inf(-1)} {
			assert.Zero(t, p.Forward(p.LastIndex(), arc), "arc=%g", arc)
		}
	})

	t.Run("NaN arc length stays put", func(t *testing.T) {
		assert.Equal(t, 7, p.Forward(7, math.NaN()))
		assert.Equal(t, p.LastIndex(), p.Forward(p.Len()+3, math.NaN()))
	})

	t.Run("yaw survives an oversized look-ahead", func(t *testing.T) {
		long := straight(1e-18, 50)
		assert.InDelta(t, 0, long.Yaw(10), 1e-12)
	})

	t.Run("remainder just below one rounds up", func(t *testing.T) {
		// 0.3/0.1 evaluates to 2.9999999999999996.
		assert.Equal(t, 3, p.Forward(0, 0.3))
	})

	t.Run("ordinary remainder floors", func(t *testing.T) {
		assert.Equal(t, 2, p.Forward(0, 0.25))
		assert.Equal(t, 12, p.Forward(10, 0.29))
	})

	t.Run("out of range start clamps", func(t *testing.T) {
		assert.Equal(t, 0, p.Forward(-5, 0))
		assert.Equal(t, p.LastIndex(), p.Forward(999, 0))
	})
}

func TestYaw(t *testing.T) {
	p := straight(1, 5)
	assert.InDelta(t, 0, p.Yaw(0), 1e-12)
	// At the end the look-ahead collapses and the yaw is taken from behind.
	assert.InDelta(t, 0, p.Yaw(4), 1e-12)

	north := New(1, geom.Pt(0, 0), geom.Pt(0, 1), geom.Pt(0, 2))
	assert.InDelta(t, math.Pi/2, north.Yaw(0), 1e-12)
	assert.InDelta(t, math.Pi/2, north.Yaw(2), 1e-12)

	west := New(1, geom.Pt(0, 0), geom.Pt(-1, 0))
	assert.InDelta(t, math.Pi, west.Yaw(1), 1e-12)

	assert.Equal(t, 0.0, New(1, geom.Pt(3, 3)).Yaw(0))
}

func TestInterpolate_ThreePointScenario(t *testing.T) {
	p := New(1.0, geom.Pt(0, 0), geom.Pt(10, 0), geom.Pt(20, 0))
	got := p.Interpolate(30)

	require.Equal(t, 21, got.Len())
	for i, pt := range got.Points {
		assert.Equal(t, geom.Pt(float64(i), 0), pt)
	}
	assert.Equal(t, 1.0, got.Step)
}

func TestInterpolate_ShortFinalSegment(t *testing.T) {
	p := New(1.0, geom.Pt(0, 0), geom.Pt(10.5, 0))
	got := p.Interpolate(100)

	// ceil(10.5/1) uniform samples plus the source endpoint.
	require.Equal(t, 12, got.Len())
	for i := 1; i < got.Len()-1; i++ {
		assert.InDelta(t, 1.0, geom.Distance(got.Points[i-1], got.Points[i]), 1e-12)
	}
	assert.InDelta(t, 0.5, geom.Distance(got.Points[10], got.Points[11]), 1e-12)
	assert.Equal(t, geom.Pt(10.5, 0), got.Points[got.LastIndex()])
}

func TestInterpolate_Diagonal(t *testing.T) {
	p := New(0.5, geom.Pt(0, 0), geom.Pt(3, 4))
	got := p.Interpolate(100)

	require.Equal(t, 11, got.Len())
	for i := 1; i < got.Len(); i++ {
		assert.InDelta(t, 0.5, geom.Distance(got.Points[i-1], got.Points[i]), 1e-9)
	}
	assert.Equal(t, geom.Pt(3, 4), got.Points[got.LastIndex()])
}

func TestInterpolate_Idempotent(t *testing.T) {
	p := New(0.5, geom.Pt(0, 0), geom.Pt(4, 0), geom.Pt(4, 3), geom.Pt(-1, 3))
	once := p.Interpolate(1000)
	twice := once.Interpolate(1000)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second interpolation changed the path (-once +twice):\n%s", diff)
	}
}

func TestInterpolate_StopsAtMaxLen(t *testing.T) {
	p := New(1.0, geom.Pt(0, 0), geom.Pt(10, 0), geom.Pt(20, 0))
	got := p.Interpolate(5)

	require.Equal(t, 6, got.Len())
	for i := 0; i < 5; i++ {
		assert.Equal(t, geom.Pt(float64(i), 0), got.Points[i])
	}
	assert.Equal(t, geom.Pt(20, 0), got.Points[5], "source endpoint is always kept")
}

func TestInterpolate_NoConsecutiveDuplicates(t *testing.T) {
	p := New(1.0, geom.Pt(0, 0), geom.Pt(0, 0), geom.Pt(2, 0), geom.Pt(2, 0))
	got := p.Interpolate(100)
	want := []geom.Point{geom.Pt(0, 0), geom.Pt(1, 0), geom.Pt(2, 0)}
	assert.Equal(t, want, got.Points)
}

func TestInterpolate_Degenerate(t *testing.T) {
	assert.True(t, Path{Step: 1}.Interpolate(10).Empty())

	single := New(1, geom.Pt(2, 2)).Interpolate(10)
	assert.Equal(t, []geom.Point{geom.Pt(2, 2)}, single.Points)
}

func TestCutJoin(t *testing.T) {
	base := straight(1, 11)
	next := New(1, geom.Pt(5.2, 0.1), geom.Pt(6, 1), geom.Pt(7, 2))

	got := base.CutJoin(next)

	want := []geom.Point{
		geom.Pt(0, 0), geom.Pt(1, 0), geom.Pt(2, 0), geom.Pt(3, 0),
		geom.Pt(5.2, 0.1), geom.Pt(6, 1), geom.Pt(7, 2),
	}
	assert.Equal(t, want, got.Points)
	assert.Equal(t, 11, base.Len(), "receiver is not modified")
}

func TestCutJoin_Edges(t *testing.T) {
	base := straight(1, 4)

	t.Run("joining at the start keeps nothing", func(t *testing.T) {
		next := New(1, geom.Pt(0, 1), geom.Pt(1, 1))
		assert.Equal(t, next.Points, base.CutJoin(next).Points)
	})

	t.Run("empty next is a no-op", func(t *testing.T) {
		assert.Equal(t, base.Points, base.CutJoin(Path{Step: 1}).Points)
	})

	t.Run("empty receiver adopts next", func(t *testing.T) {
		next := New(1, geom.Pt(9, 9))
		assert.Equal(t, next.Points, Path{Step: 1}.CutJoin(next).Points)
	})
}

func TestLength(t *testing.T) {
	p := New(1, geom.Pt(0, 0), geom.Pt(3, 4), geom.Pt(3, 10))
	assert.Equal(t, 11.0, p.Length(0))
	assert.Equal(t, 6.0, p.Length(1))
	assert.Equal(t, 0.0, p.Length(2))
	assert.Equal(t, 0.0, p.Length(7))
	assert.Equal(t, 11.0, p.Length(-3))
}

func TestCurDirAndCrossDir(t *testing.T) {
	p := straight(0.05, 400)
	assert.InDelta(t, 0, p.CurDir(0), 1e-12)
	assert.InDelta(t, 0, p.CurDir(p.LastIndex()-3), 1e-12)

	left := p.CrossDir(0, true)
	assert.InDelta(t, 0, left.X, 1e-12)
	assert.InDelta(t, 1, left.Y, 1e-12)

	right := p.CrossDir(0, false)
	assert.InDelta(t, 0, right.X, 1e-12)
	assert.InDelta(t, -1, right.Y, 1e-12)

	// The smoothed heading looks 150 waypoints ahead, past a local kink.
	kinked := straight(1, 200)
	kinked.Points[1] = geom.Pt(1, 5)
	assert.InDelta(t, 0, kinked.CurDir(0), 1e-12)
}
