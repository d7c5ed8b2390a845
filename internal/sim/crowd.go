package sim

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/world"
)

// Walker is a scripted agent moving in a straight line. It appears after
// Appear and disappears after Appear+Lifetime (zero means never).
type Walker struct {
	ID       int
	Type     string // "ped", "car" or "bike"
	Start    geom.Point
	Velocity geom.Point
	Appear   time.Duration
	Lifetime time.Duration
}

// At returns the walker's position after elapsed, and whether it is
// present.
func (w Walker) At(elapsed time.Duration) (geom.Point, bool) {
	t := elapsed - w.Appear
	if t < 0 || (w.Lifetime > 0 && t > w.Lifetime) {
		return geom.Point{}, false
	}
	return r2.Add(w.Start, r2.Scale(t.Seconds(), w.Velocity)), true
}

// Crowd feeds walker positions and straight-line predictions into an
// agent store, the way the perception link would.
type Crowd struct {
	Walkers []Walker
	// Horizon is how far ahead the predicted path reaches.
	Horizon time.Duration

	store *world.Tracker
	clock timeutil.Clock
	start time.Time
}

// NewCrowd starts the walkers' script at the clock's current time.
func NewCrowd(tr *world.Tracker, clock timeutil.Clock, walkers ...Walker) *Crowd {
	return &Crowd{Walkers: walkers, Horizon: 3 * time.Second, store: tr, clock: clock, start: clock.Now()}
}

// Update publishes every present walker. Walkers that have left simply
// stop being observed and age out of the tracker.
func (c *Crowd) Update() error {
	elapsed := c.clock.Since(c.start)
	var obs []world.Observation
	var ups []world.PathUpdate
	for _, w := range c.Walkers {
		pos, ok := w.At(elapsed)
		if !ok {
			continue
		}
		typ := w.Type
		if typ == "" {
			typ = "ped"
		}
		obs = append(obs, world.Observation{
			ID: w.ID, Type: typ, Pos: pos,
			Heading: geom.Angle(w.Velocity), HasHeading: true,
		})
		end, _ := w.At(elapsed + c.Horizon)
		if w.Lifetime > 0 && elapsed+c.Horizon-w.Appear > w.Lifetime {
			end = r2.Add(w.Start, r2.Scale(w.Lifetime.Seconds(), w.Velocity))
		}
		ups = append(ups, world.PathUpdate{
			ID: w.ID, Type: typ,
			Paths:    []path.Path{path.New(0, pos, end)},
			CrossDir: geom.Cross(geom.Unit(0), w.Velocity) > 0,
		})
	}
	if len(obs) == 0 {
		c.store.Clean()
		return nil
	}
	if err := c.store.UpdateAgents(obs); err != nil {
		return err
	}
	return c.store.UpdatePaths(ups)
}
