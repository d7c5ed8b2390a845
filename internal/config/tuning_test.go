package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetPathStep() != 0.05 {
		t.Errorf("GetPathStep() = %v, want 0.05", cfg.GetPathStep())
	}
	if cfg.GetDivergenceThreshold() != 4.0 {
		t.Errorf("GetDivergenceThreshold() = %v, want 4.0", cfg.GetDivergenceThreshold())
	}
	if cfg.GetVehicleModel() != "pomdp_car" {
		t.Errorf("GetVehicleModel() = %q, want pomdp_car", cfg.GetVehicleModel())
	}
	if cfg.GetPoseRetryAttempts() != 28 {
		t.Errorf("GetPoseRetryAttempts() = %d, want 28", cfg.GetPoseRetryAttempts())
	}
	if cfg.GetPoseRetryInterval() != time.Second {
		t.Errorf("GetPoseRetryInterval() = %v, want 1s", cfg.GetPoseRetryInterval())
	}
	if got := cfg.GetControlPeriod(); got != time.Second/3 {
		t.Errorf("GetControlPeriod() = %v, want %v", got, time.Second/3)
	}
	if cfg.GetEmergencyDistance() != 0.5 {
		t.Errorf("GetEmergencyDistance() = %v, want 0.5", cfg.GetEmergencyDistance())
	}
}

// The defaults file and the Get* fallbacks must agree.
func TestDefaultsFileMatchesGetters(t *testing.T) {
	file := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	floats := []struct {
		name     string
		got, def float64
	}{
		{"path_step", file.GetPathStep(), empty.GetPathStep()},
		{"plan_horizon", file.GetPlanHorizon(), empty.GetPlanHorizon()},
		{"pathplan_ahead", file.GetPathplanAhead(), empty.GetPathplanAhead()},
		{"max_accel", file.GetMaxAccel(), empty.GetMaxAccel()},
		{"max_speed", file.GetMaxSpeed(), empty.GetMaxSpeed()},
		{"control_freq", file.GetControlFreq(), empty.GetControlFreq()},
		{"min_collision_speed", file.GetMinCollisionSpeed(), empty.GetMinCollisionSpeed()},
		{"divergence_threshold", file.GetDivergenceThreshold(), empty.GetDivergenceThreshold()},
		{"goal_tolerance", file.GetGoalTolerance(), empty.GetGoalTolerance()},
		{"emergency_distance", file.GetEmergencyDistance(), empty.GetEmergencyDistance()},
		{"car_width", file.GetCarWidth(), empty.GetCarWidth()},
		{"car_length", file.GetCarLength(), empty.GetCarLength()},
		{"car_front", file.GetCarFront(), empty.GetCarFront()},
		{"car_side_margin", file.GetCarSideMargin(), empty.GetCarSideMargin()},
		{"car_front_margin", file.GetCarFrontMargin(), empty.GetCarFrontMargin()},
		{"agent_size", file.GetAgentSize(), empty.GetAgentSize()},
		{"max_steer_angle", file.GetMaxSteerAngle(), empty.GetMaxSteerAngle()},
		{"goal_reward", file.GetGoalReward(), empty.GetGoalReward()},
		{"crash_penalty", file.GetCrashPenalty(), empty.GetCrashPenalty()},
		{"reward_base_crash_vel", file.GetRewardBaseCrashVel(), empty.GetRewardBaseCrashVel()},
		{"reward_factor_vel", file.GetRewardFactorVel(), empty.GetRewardFactorVel()},
		{"acc_penalty", file.GetAccPenalty(), empty.GetAccPenalty()},
		{"steer_penalty", file.GetSteerPenalty(), empty.GetSteerPenalty()},
	}
	for _, f := range floats {
		if f.got != f.def {
			t.Errorf("%s: file %v, getter default %v", f.name, f.got, f.def)
		}
	}
	if file.GetVehicleModel() != empty.GetVehicleModel() {
		t.Errorf("vehicle_model: file %q, default %q", file.GetVehicleModel(), empty.GetVehicleModel())
	}
	if file.GetNumSteerAngles() != empty.GetNumSteerAngles() {
		t.Errorf("num_steer_angles: file %d, default %d", file.GetNumSteerAngles(), empty.GetNumSteerAngles())
	}
	if file.GetPoseRetryAttempts() != empty.GetPoseRetryAttempts() {
		t.Errorf("pose_retry_attempts mismatch")
	}
	if file.GetPoseRetryInterval() != empty.GetPoseRetryInterval() {
		t.Errorf("pose_retry_interval mismatch")
	}
	if file.GetAgentStaleTimeout() != empty.GetAgentStaleTimeout() {
		t.Errorf("agent_stale_timeout mismatch")
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "drive.json")

	testJSON := `{
  "max_speed": 4.5,
  "vehicle_model": "carla",
  "car_front": 2.3,
  "pose_retry_interval": "250ms",
  "num_steer_angles": 3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetMaxSpeed() != 4.5 {
		t.Errorf("GetMaxSpeed() = %v, want 4.5", cfg.GetMaxSpeed())
	}
	if cfg.GetVehicleModel() != "carla" {
		t.Errorf("GetVehicleModel() = %q, want carla", cfg.GetVehicleModel())
	}
	if cfg.GetPoseRetryInterval() != 250*time.Millisecond {
		t.Errorf("GetPoseRetryInterval() = %v, want 250ms", cfg.GetPoseRetryInterval())
	}
	if cfg.GetNumSteerAngles() != 3 {
		t.Errorf("GetNumSteerAngles() = %d, want 3", cfg.GetNumSteerAngles())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetMaxAccel() != 1.5 {
		t.Errorf("GetMaxAccel() = %v, want 1.5", cfg.GetMaxAccel())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("drive.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"too large", write("big.json", `{"path_step": 0.1}`+strings.Repeat(" ", 1024*1024+1)), "too large"},
		{"invalid value", write("neg.json", `{"max_speed": -1}`), "max_speed must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr string
	}{
		{"empty ok", TuningConfig{}, ""},
		{"zero step", TuningConfig{PathStep: f(0)}, "path_step"},
		{"zero freq", TuningConfig{ControlFreq: f(0)}, "control_freq"},
		{"negative agent", TuningConfig{AgentSize: f(-0.1)}, "agent_size"},
		{"unknown model", TuningConfig{VehicleModel: s("tesla")}, "vehicle_model"},
		{"no steer bins", TuningConfig{NumSteerAngles: i(0)}, "num_steer_angles"},
		{"no retries", TuningConfig{PoseRetryAttempts: i(0)}, "pose_retry_attempts"},
		{"bad duration", TuningConfig{PoseRetryInterval: s("soon")}, "pose_retry_interval"},
		{"negative duration", TuningConfig{AgentStaleTimeout: s("-1s")}, "agent_stale_timeout"},
		{"carla ok", TuningConfig{VehicleModel: s("carla"), CarFront: f(2)}, ""},
		{"short bbox", TuningConfig{EgoBBox: [][2]float64{{0, 0}, {1, 0}}}, "ego_bbox"},
		{"bbox ok", TuningConfig{EgoBBox: [][2]float64{{-1, -1}, {1, -1}, {1, 1}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetDuration_FallbackOnParseError(t *testing.T) {
	bad := "later"
	cfg := &TuningConfig{AgentStaleTimeout: &bad}
	if cfg.GetAgentStaleTimeout() != time.Second {
		t.Errorf("GetAgentStaleTimeout() = %v, want default 1s", cfg.GetAgentStaleTimeout())
	}
}
