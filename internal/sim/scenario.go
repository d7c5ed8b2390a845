package sim

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/world"
)

// Scenario is everything needed to assemble a closed-loop run.
type Scenario struct {
	Plant    PlantConfig
	Cruise   CruiseConfig
	Path     path.Path
	Walkers  []Walker
	MaxTicks int
	Start    time.Time
}

// StraightScenario drives length metres along the x axis from the origin.
func StraightScenario(cfg control.Config, length float64) Scenario {
	plant := DefaultPlantConfig()
	plant.MaxAccel = cfg.MaxAccel
	return Scenario{
		Plant: plant,
		Cruise: CruiseConfig{
			Speed:      cfg.MaxSpeed / 2,
			Ahead:      3,
			Wheelbase:  plant.Wheelbase,
			MaxAccel:   cfg.MaxAccel,
			StopMargin: 0.5,
		},
		Path:     path.New(0, geom.Pt(0, 0), geom.Pt(length, 0)),
		MaxTicks: 1000,
		Start:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Loop is an assembled simulation with handles on its parts.
type Loop struct {
	*Simulation
	Tracker *world.Tracker
	Stats   *Stats
}

// Build wires a controller, plant, crowd and tracker for sc on a fresh
// mock clock. Extra observers see every tick after the loop's Stats.
func Build(cfg control.Config, sc Scenario, log *zap.Logger, observers ...control.Observer) (*Loop, error) {
	start := sc.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	clock := timeutil.NewMockClock(start)
	plant := NewPlant(sc.Plant, clock)
	tracker := world.NewTracker(world.DefaultTrackerConfig(), clock)
	stats := &Stats{}

	ctrl, err := control.New(cfg, control.Deps{
		Sensor:   plant,
		Planner:  NewCruise(sc.Cruise, cfg.Actions),
		Agents:   tracker,
		Sink:     plant,
		Observer: append(control.Observers{stats}, observers...),
		Clock:    clock,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}
	ctrl.SetPath(sc.Path)

	s := &Simulation{Controller: ctrl, Plant: plant, Clock: clock, MaxTicks: sc.MaxTicks}
	if len(sc.Walkers) > 0 {
		s.Crowd = NewCrowd(tracker, clock, sc.Walkers...)
	}
	return &Loop{Simulation: s, Tracker: tracker, Stats: stats}, nil
}
