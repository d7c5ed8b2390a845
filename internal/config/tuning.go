package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Vehicle model names accepted by vehicle_model.
var vehicleModels = map[string]bool{"pomdp_car": true, "audi_r8": true, "carla": true}

// TuningConfig represents the root configuration for the drive stack.
// Every field is optional; the Get* methods supply defaults for anything
// omitted, so partial configs are safe. Values are read once at startup.
type TuningConfig struct {
	// Path engine
	PathStep      *float64 `json:"path_step,omitempty"`      // resample spacing, metres
	PlanHorizon   *float64 `json:"plan_horizon,omitempty"`   // max resampled plan length, metres
	PathplanAhead *float64 `json:"pathplan_ahead,omitempty"` // pursuit look-ahead, metres

	// Motion limits
	MaxAccel    *float64 `json:"max_accel,omitempty"`    // m/s²
	MaxSpeed    *float64 `json:"max_speed,omitempty"`    // m/s
	ControlFreq *float64 `json:"control_freq,omitempty"` // Hz

	// Overrides
	MinCollisionSpeed   *float64 `json:"min_collision_speed,omitempty"`
	DivergenceThreshold *float64 `json:"divergence_threshold,omitempty"`
	GoalTolerance       *float64 `json:"goal_tolerance,omitempty"`
	EmergencyDistance   *float64 `json:"emergency_distance,omitempty"`

	// Vehicle geometry
	VehicleModel   *string  `json:"vehicle_model,omitempty"`
	CarWidth       *float64 `json:"car_width,omitempty"`
	CarLength      *float64 `json:"car_length,omitempty"`
	CarFront       *float64 `json:"car_front,omitempty"`
	CarSideMargin  *float64 `json:"car_side_margin,omitempty"`
	CarFrontMargin *float64 `json:"car_front_margin,omitempty"`
	AgentSize      *float64 `json:"agent_size,omitempty"`
	// EgoBBox, when set, replaces car_width, car_length and car_front with
	// the extent of these corners, given in the vehicle frame (reference
	// point at the origin, heading along +x).
	EgoBBox [][2]float64 `json:"ego_bbox,omitempty"`

	// Action space
	NumSteerAngles *int     `json:"num_steer_angles,omitempty"` // bins per side
	MaxSteerAngle  *float64 `json:"max_steer_angle,omitempty"`  // radians

	// Sensing
	PoseRetryAttempts *int    `json:"pose_retry_attempts,omitempty"`
	PoseRetryInterval *string `json:"pose_retry_interval,omitempty"` // duration string like "1s"
	AgentStaleTimeout *string `json:"agent_stale_timeout,omitempty"` // duration string like "1s"

	// Reward
	GoalReward         *float64 `json:"goal_reward,omitempty"`
	CrashPenalty       *float64 `json:"crash_penalty,omitempty"`
	RewardBaseCrashVel *float64 `json:"reward_base_crash_vel,omitempty"`
	RewardFactorVel    *float64 `json:"reward_factor_vel,omitempty"`
	AccPenalty         *float64 `json:"acc_penalty,omitempty"`
	SteerPenalty       *float64 `json:"steer_penalty,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates a JSON document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func positive(name string, v *float64) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %g", name, *v)
	}
	return nil
}

func nonNegative(name string, v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%s must be non-negative, got %g", name, *v)
	}
	return nil
}

func duration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for _, chk := range []error{
		positive("path_step", c.PathStep),
		positive("plan_horizon", c.PlanHorizon),
		nonNegative("pathplan_ahead", c.PathplanAhead),
		positive("max_accel", c.MaxAccel),
		positive("max_speed", c.MaxSpeed),
		positive("control_freq", c.ControlFreq),
		nonNegative("min_collision_speed", c.MinCollisionSpeed),
		positive("divergence_threshold", c.DivergenceThreshold),
		nonNegative("goal_tolerance", c.GoalTolerance),
		nonNegative("emergency_distance", c.EmergencyDistance),
		nonNegative("car_width", c.CarWidth),
		nonNegative("car_length", c.CarLength),
		nonNegative("car_front", c.CarFront),
		nonNegative("car_side_margin", c.CarSideMargin),
		nonNegative("car_front_margin", c.CarFrontMargin),
		nonNegative("agent_size", c.AgentSize),
		positive("max_steer_angle", c.MaxSteerAngle),
		nonNegative("reward_base_crash_vel", c.RewardBaseCrashVel),
		duration("pose_retry_interval", c.PoseRetryInterval),
		duration("agent_stale_timeout", c.AgentStaleTimeout),
	} {
		if chk != nil {
			return chk
		}
	}

	if c.VehicleModel != nil && !vehicleModels[*c.VehicleModel] {
		return fmt.Errorf("vehicle_model must be one of pomdp_car, audi_r8, carla; got %q", *c.VehicleModel)
	}
	if c.NumSteerAngles != nil && *c.NumSteerAngles < 1 {
		return fmt.Errorf("num_steer_angles must be at least 1, got %d", *c.NumSteerAngles)
	}
	if c.EgoBBox != nil && len(c.EgoBBox) < 3 {
		return fmt.Errorf("ego_bbox needs at least 3 corners, got %d", len(c.EgoBBox))
	}
	if c.PoseRetryAttempts != nil && *c.PoseRetryAttempts < 1 {
		return fmt.Errorf("pose_retry_attempts must be at least 1, got %d", *c.PoseRetryAttempts)
	}
	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetPathStep returns the path_step value or the default.
func (c *TuningConfig) GetPathStep() float64 { return getFloat(c.PathStep, 0.05) }

// GetPlanHorizon returns the plan_horizon value or the default.
func (c *TuningConfig) GetPlanHorizon() float64 { return getFloat(c.PlanHorizon, 100) }

// GetPathplanAhead returns the pathplan_ahead value or the default.
func (c *TuningConfig) GetPathplanAhead() float64 { return getFloat(c.PathplanAhead, 3.0) }

// GetMaxAccel returns the max_accel value or the default.
func (c *TuningConfig) GetMaxAccel() float64 { return getFloat(c.MaxAccel, 1.5) }

// GetMaxSpeed returns the max_speed value or the default.
func (c *TuningConfig) GetMaxSpeed() float64 { return getFloat(c.MaxSpeed, 6.0) }

// GetControlFreq returns the control_freq value or the default.
func (c *TuningConfig) GetControlFreq() float64 { return getFloat(c.ControlFreq, 3.0) }

// GetControlPeriod returns 1/control_freq as a duration.
func (c *TuningConfig) GetControlPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.GetControlFreq())
}

// GetMinCollisionSpeed returns the min_collision_speed value or the default.
func (c *TuningConfig) GetMinCollisionSpeed() float64 { return getFloat(c.MinCollisionSpeed, 0.5) }

// GetDivergenceThreshold returns the divergence_threshold value or the default.
func (c *TuningConfig) GetDivergenceThreshold() float64 {
	return getFloat(c.DivergenceThreshold, 4.0)
}

// GetGoalTolerance returns the goal_tolerance value or the default.
func (c *TuningConfig) GetGoalTolerance() float64 { return getFloat(c.GoalTolerance, 2.0) }

// GetEmergencyDistance returns the emergency_distance value or the default.
func (c *TuningConfig) GetEmergencyDistance() float64 { return getFloat(c.EmergencyDistance, 0.5) }

// GetVehicleModel returns the vehicle_model value or the default.
func (c *TuningConfig) GetVehicleModel() string {
	if c.VehicleModel == nil || *c.VehicleModel == "" {
		return "pomdp_car"
	}
	return *c.VehicleModel
}

// GetCarWidth returns the car_width value or the default.
func (c *TuningConfig) GetCarWidth() float64 { return getFloat(c.CarWidth, 1.2) }

// GetCarLength returns the car_length value or the default.
func (c *TuningConfig) GetCarLength() float64 { return getFloat(c.CarLength, 2.2) }

// GetCarFront returns the car_front value or the default.
func (c *TuningConfig) GetCarFront() float64 { return getFloat(c.CarFront, 1.1) }

// GetCarSideMargin returns the car_side_margin value or the default.
func (c *TuningConfig) GetCarSideMargin() float64 { return getFloat(c.CarSideMargin, 0.8) }

// GetCarFrontMargin returns the car_front_margin value or the default.
func (c *TuningConfig) GetCarFrontMargin() float64 { return getFloat(c.CarFrontMargin, 1.0) }

// GetEgoBBox returns the ego bounding box corners, or nil when unset.
func (c *TuningConfig) GetEgoBBox() [][2]float64 { return c.EgoBBox }

// GetAgentSize returns the agent_size value or the default.
func (c *TuningConfig) GetAgentSize() float64 { return getFloat(c.AgentSize, 0.25) }

// GetNumSteerAngles returns the num_steer_angles value or the default.
func (c *TuningConfig) GetNumSteerAngles() int {
	if c.NumSteerAngles == nil {
		return 7
	}
	return *c.NumSteerAngles
}

// GetMaxSteerAngle returns the max_steer_angle value or the default.
func (c *TuningConfig) GetMaxSteerAngle() float64 { return getFloat(c.MaxSteerAngle, 0.6) }

// GetPoseRetryAttempts returns the pose_retry_attempts value or the default.
func (c *TuningConfig) GetPoseRetryAttempts() int {
	if c.PoseRetryAttempts == nil {
		return 28
	}
	return *c.PoseRetryAttempts
}

// GetPoseRetryInterval parses and returns the pose_retry_interval.
func (c *TuningConfig) GetPoseRetryInterval() time.Duration {
	return getDuration(c.PoseRetryInterval, time.Second)
}

// GetAgentStaleTimeout parses and returns the agent_stale_timeout.
func (c *TuningConfig) GetAgentStaleTimeout() time.Duration {
	return getDuration(c.AgentStaleTimeout, time.Second)
}

// GetGoalReward returns the goal_reward value or the default.
func (c *TuningConfig) GetGoalReward() float64 { return getFloat(c.GoalReward, 0) }

// GetCrashPenalty returns the crash_penalty value or the default.
func (c *TuningConfig) GetCrashPenalty() float64 { return getFloat(c.CrashPenalty, -1000) }

// GetRewardBaseCrashVel returns the reward_base_crash_vel value or the default.
func (c *TuningConfig) GetRewardBaseCrashVel() float64 { return getFloat(c.RewardBaseCrashVel, 0.8) }

// GetRewardFactorVel returns the reward_factor_vel value or the default.
func (c *TuningConfig) GetRewardFactorVel() float64 { return getFloat(c.RewardFactorVel, 1.0) }

// GetAccPenalty returns the acc_penalty value or the default. It is
// applied to deceleration actions.
func (c *TuningConfig) GetAccPenalty() float64 { return getFloat(c.AccPenalty, -0.1) }

// GetSteerPenalty returns the steer_penalty value or the default. It is
// scaled by the absolute steering angle.
func (c *TuningConfig) GetSteerPenalty() float64 { return getFloat(c.SteerPenalty, -0.1) }
