package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
)

// Simulation runs a controller against a Plant on a mock clock, advancing
// time one control period per published command so runs finish as fast
// as the loop can execute.
type Simulation struct {
	Controller *control.Controller
	Plant      *Plant
	Clock      *timeutil.MockClock
	Crowd      *Crowd // optional
	// MaxTicks bounds the run; zero means unbounded.
	MaxTicks int
	// Idle is how long to wait for a command before advancing anyway.
	Idle time.Duration
}

// ErrTickBudget wraps the controller's exit when MaxTicks is reached.
var ErrTickBudget = errors.New("simulation tick budget exhausted")

// Run drives the controller until it exits and returns its error.
func (s *Simulation) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	idle := s.Idle
	if idle <= 0 {
		idle = 20 * time.Millisecond
	}
	period := s.Controller.Config().Period()

	done := make(chan error, 1)
	go func() { done <- s.Controller.Run(ctx) }()

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for ticks := 0; ; ticks++ {
		if s.MaxTicks > 0 && ticks >= s.MaxTicks {
			cancel()
			if err := <-done; err != nil {
				return fmt.Errorf("%w after %d ticks: %w", ErrTickBudget, ticks, err)
			}
			return fmt.Errorf("%w after %d ticks", ErrTickBudget, ticks)
		}
		if s.Crowd != nil {
			if err := s.Crowd.Update(); err != nil {
				cancel()
				<-done
				return fmt.Errorf("crowd update: %w", err)
			}
		}
		s.Clock.Advance(period)

		timer.Reset(idle)
		select {
		case err := <-done:
			return err
		case <-s.Plant.Published():
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// Summary is a point-in-time view of a run.
type Summary struct {
	Ticks       int
	Modes       map[control.Mode]int
	TotalReward float64
	Collisions  map[int]int // agent id -> override ticks
	Last        control.TickResult
}

// Stats accumulates a Summary. It implements control.Observer.
type Stats struct {
	mu  sync.Mutex
	sum Summary
}

// ObserveTick implements control.Observer.
func (s *Stats) ObserveTick(r control.TickResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sum.Modes == nil {
		s.sum.Modes = make(map[control.Mode]int)
		s.sum.Collisions = make(map[int]int)
	}
	s.sum.Ticks++
	s.sum.Modes[r.Mode]++
	s.sum.TotalReward += r.Reward
	if r.CollisionAgent >= 0 {
		s.sum.Collisions[r.CollisionAgent]++
	}
	s.sum.Last = r
}

// Snapshot returns a copy safe to read while the run continues.
func (s *Stats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sum
	out.Modes = make(map[control.Mode]int, len(s.sum.Modes))
	out.Collisions = make(map[int]int, len(s.sum.Collisions))
	for k, v := range s.sum.Modes {
		out.Modes[k] = v
	}
	for k, v := range s.sum.Collisions {
		out.Collisions[k] = v
	}
	return out
}
