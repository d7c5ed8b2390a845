package control

import (
	"fmt"
	"time"

	"github.com/banshee-data/crowd-drive/internal/config"
	"github.com/banshee-data/crowd-drive/internal/geom"
	"github.com/banshee-data/crowd-drive/internal/safety"
)

// RewardConfig holds the step-reward constants.
type RewardConfig struct {
	GoalReward         float64
	CrashPenalty       float64 // scaled by v² + BaseCrashVel
	BaseCrashVel       float64
	FactorVel          float64
	AccPenalty         float64 // applied to deceleration actions
	SteerPenalty       float64 // scaled by |steer|
	CrashCheckMinSpeed float64
}

// Config is the immutable controller configuration.
type Config struct {
	PathStep    float64
	PlanHorizon float64

	MaxAccel    float64
	MaxSpeed    float64
	ControlFreq float64

	MinCollisionSpeed   float64
	DivergenceThreshold float64
	GoalTolerance       float64
	EmergencyDistance   float64
	// Goal-reached runs end once real speed is at or below this.
	StoppedSpeed float64

	Model    safety.VehicleModel
	Geometry safety.Geometry
	Actions  ActionTable

	PoseRetryAttempts int
	PoseRetryInterval time.Duration

	Reward RewardConfig
}

// ConfigFromTuning derives controller config from a TuningConfig.
func ConfigFromTuning(t *config.TuningConfig) (Config, error) {
	model, err := safety.ParseVehicleModel(t.GetVehicleModel())
	if err != nil {
		return Config{}, fmt.Errorf("control config: %w", err)
	}
	c := Config{
		PathStep:            t.GetPathStep(),
		PlanHorizon:         t.GetPlanHorizon(),
		MaxAccel:            t.GetMaxAccel(),
		MaxSpeed:            t.GetMaxSpeed(),
		ControlFreq:         t.GetControlFreq(),
		MinCollisionSpeed:   t.GetMinCollisionSpeed(),
		DivergenceThreshold: t.GetDivergenceThreshold(),
		GoalTolerance:       t.GetGoalTolerance(),
		EmergencyDistance:   t.GetEmergencyDistance(),
		StoppedSpeed:        0.01,
		Model:               model,
		Geometry: safety.Geometry{
			Width:       t.GetCarWidth(),
			Length:      t.GetCarLength(),
			Front:       t.GetCarFront(),
			SideMargin:  t.GetCarSideMargin(),
			FrontMargin: t.GetCarFrontMargin(),
			AgentSize:   t.GetAgentSize(),
		},
		Actions:           NewActionTable(t.GetNumSteerAngles(), t.GetMaxSteerAngle(), t.GetMaxAccel()),
		PoseRetryAttempts: t.GetPoseRetryAttempts(),
		PoseRetryInterval: t.GetPoseRetryInterval(),
		Reward: RewardConfig{
			GoalReward:         t.GetGoalReward(),
			CrashPenalty:       t.GetCrashPenalty(),
			BaseCrashVel:       t.GetRewardBaseCrashVel(),
			FactorVel:          t.GetRewardFactorVel(),
			AccPenalty:         t.GetAccPenalty(),
			SteerPenalty:       t.GetSteerPenalty(),
			CrashCheckMinSpeed: 0.001,
		},
	}
	if bbox := t.GetEgoBBox(); len(bbox) > 0 {
		corners := make([]geom.Point, len(bbox))
		for i, xy := range bbox {
			corners[i] = geom.Pt(xy[0], xy[1])
		}
		c.Geometry = c.Geometry.WithBBox(geom.Pt(0, 0), 0, corners)
	}
	return c, c.Validate()
}

// DefaultConfig returns the controller config for an empty TuningConfig.
func DefaultConfig() Config {
	c, _ := ConfigFromTuning(config.EmptyTuningConfig())
	return c
}

// Validate checks the values the tick arithmetic divides by.
func (c Config) Validate() error {
	if c.ControlFreq <= 0 {
		return fmt.Errorf("control frequency must be positive, got %g", c.ControlFreq)
	}
	if c.MaxSpeed <= 0 {
		return fmt.Errorf("max speed must be positive, got %g", c.MaxSpeed)
	}
	if c.PathStep <= 0 {
		return fmt.Errorf("path step must be positive, got %g", c.PathStep)
	}
	if c.PoseRetryAttempts < 1 {
		return fmt.Errorf("pose retry attempts must be at least 1, got %d", c.PoseRetryAttempts)
	}
	return nil
}

// Period is one control tick.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.ControlFreq)
}

// SpeedStep is the most the target speed may move from the real speed in
// one tick.
func (c Config) SpeedStep() float64 { return c.MaxAccel / c.ControlFreq }

// SafetyMargins is the expanded zone for the configured vehicle.
func (c Config) SafetyMargins() safety.Margins { return c.Model.SafetyMargins(c.Geometry) }

// RealMargins is the physical zone for the configured vehicle.
func (c Config) RealMargins() safety.Margins { return c.Model.RealMargins(c.Geometry) }
