package drivelink

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/timeutil"
	"github.com/banshee-data/crowd-drive/internal/world"
)

// OverspeedFactor scales max speed into the odometry warning threshold.
const OverspeedFactor = 1.3

// Sensor holds the latest pose and odometry received over the link. It
// implements control.Sensor.
type Sensor struct {
	clock    timeutil.Clock
	maxSpeed float64
	log      *zap.Logger

	mu       sync.RWMutex
	pose     world.Pose
	at       time.Time
	havePose bool
	speed    float64
}

// NewSensor returns a sensor that warns when odometry exceeds
// OverspeedFactor times maxSpeed.
func NewSensor(clock timeutil.Clock, maxSpeed float64, log *zap.Logger) *Sensor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sensor{clock: clock, maxSpeed: maxSpeed, log: log}
}

// UpdatePose records a pose measured at at.
func (s *Sensor) UpdatePose(p world.Pose, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose, s.at, s.havePose = p, at, true
}

// UpdateOdom records the forward speed: the velocity projected onto the
// heading.
func (s *Sensor) UpdateOdom(vx, vy, heading float64) float64 {
	speed := geom.Dot(geom.Pt(vx, vy), geom.Unit(heading))
	if speed > OverspeedFactor*s.maxSpeed {
		s.log.Warn("odometry speed above limit",
			zap.Float64("speed", speed),
			zap.Float64("limit", OverspeedFactor*s.maxSpeed))
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	return speed
}

// SensedPose implements control.Sensor.
func (s *Sensor) SensedPose() (world.Pose, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.havePose {
		return world.Pose{}, time.Time{}, fmt.Errorf("%w: no pose received", control.ErrSensorUnavailable)
	}
	return s.pose, s.at, nil
}

// SensedSpeed implements control.Sensor.
func (s *Sensor) SensedSpeed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// Now is the sensor's clock.
func (s *Sensor) Now() time.Time { return s.clock.Now() }

// EmergencyFlag is an externally set emergency signal. It implements
// control.EmergencySignal.
type EmergencyFlag struct{ v atomic.Bool }

// Set asserts or clears the flag.
func (f *EmergencyFlag) Set(asserted bool) { f.v.Store(asserted) }

// Asserted reports the flag.
func (f *EmergencyFlag) Asserted() bool { return f.v.Load() }

// EmergencyAsserted implements control.EmergencySignal.
func (f *EmergencyFlag) EmergencyAsserted(control.View) bool { return f.v.Load() }

// Sink publishes commands over a link. It implements control.CommandSink.
type Sink struct {
	link interface{ Send(string) error }
}

// NewSink returns a sink writing to link.
func NewSink(link interface{ Send(string) error }) *Sink { return &Sink{link: link} }

// Publish implements control.CommandSink.
func (s *Sink) Publish(cmd control.Command) error {
	if !finite(cmd.TargetSpeed) || !finite(cmd.Steer) || !finite(cmd.Accel) || !finite(cmd.CurSpeed) {
		return fmt.Errorf("refusing to send non-finite command at tick %d", cmd.Tick)
	}
	b, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return s.link.Send(string(b))
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
