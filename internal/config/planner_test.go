package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyPlannerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
	if got := cfg.GetStartLane(); got != 1 {
		t.Errorf("GetStartLane() = %d, want 1", got)
	}
	if got := cfg.GetSpeedLimit(); got != 49.5 {
		t.Errorf("GetSpeedLimit() = %v, want 49.5", got)
	}
	if got := cfg.GetPathLength(); got != 50 {
		t.Errorf("GetPathLength() = %d, want 50", got)
	}
	if got := cfg.GetTrackLength(); got != 6945.554 {
		t.Errorf("GetTrackLength() = %v, want 6945.554", got)
	}
	if got := cfg.GetSpeedFactor(); got != 2.24 {
		t.Errorf("GetSpeedFactor() = %v, want 2.24", got)
	}
}

func TestDefaultsFileMatchesAccessors(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	want := EmptyPlannerConfig().Effective()
	got := cfg.Effective()

	if *got.TrackLength != *want.TrackLength {
		t.Errorf("track_length = %v, want %v", *got.TrackLength, *want.TrackLength)
	}
	if *got.StartLane != *want.StartLane {
		t.Errorf("start_lane = %v, want %v", *got.StartLane, *want.StartLane)
	}
	if *got.TooCloseGap != *want.TooCloseGap {
		t.Errorf("too_close_gap = %v, want %v", *got.TooCloseGap, *want.TooCloseGap)
	}
	if *got.SpeedIncrement != *want.SpeedIncrement || *got.SpeedDecrement != *want.SpeedDecrement {
		t.Errorf("speed steps = %v/%v, want %v/%v",
			*got.SpeedIncrement, *got.SpeedDecrement, *want.SpeedIncrement, *want.SpeedDecrement)
	}
	if *got.AnchorCount != *want.AnchorCount || *got.AnchorSpacing != *want.AnchorSpacing {
		t.Errorf("anchors = %v x %v, want %v x %v",
			*got.AnchorCount, *got.AnchorSpacing, *want.AnchorCount, *want.AnchorSpacing)
	}
}

func TestLoadPlannerConfigJSON(t *testing.T) {
	path := writeFile(t, "planner.json", `{"too_close_gap": 30, "start_lane": 0}`)
	cfg, err := LoadPlannerConfig(path)
	if err != nil {
		t.Fatalf("LoadPlannerConfig: %v", err)
	}
	if got := cfg.GetTooCloseGap(); got != 30 {
		t.Errorf("GetTooCloseGap() = %v, want 30", got)
	}
	if got := cfg.GetStartLane(); got != 0 {
		t.Errorf("GetStartLane() = %d, want 0", got)
	}
	// Unset fields keep their defaults.
	if got := cfg.GetRiskAhead(); got != 10 {
		t.Errorf("GetRiskAhead() = %v, want 10", got)
	}
}

func TestLoadPlannerConfigYAML(t *testing.T) {
	for _, name := range []string{"planner.yaml", "planner.yml"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, "speed_limit: 45\npath_length: 40\n")
			cfg, err := LoadPlannerConfig(path)
			if err != nil {
				t.Fatalf("LoadPlannerConfig: %v", err)
			}
			if got := cfg.GetSpeedLimit(); got != 45 {
				t.Errorf("GetSpeedLimit() = %v, want 45", got)
			}
			if got := cfg.GetPathLength(); got != 40 {
				t.Errorf("GetPathLength() = %d, want 40", got)
			}
		})
	}
}

func TestLoadPlannerConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad extension", "planner.toml", "x = 1", "extension"},
		{"bad json", "planner.json", "{", "failed to parse"},
		{"unknown yaml key", "planner.yaml", "speed_limt: 45\n", "failed to parse"},
		{"unknown json key", "planner.json", `{"speed_limt": 45}`, "failed to parse"},
		{"negative gap", "planner.json", `{"too_close_gap": -1}`, "too_close_gap"},
		{"zero cycle", "planner.json", `{"cycle_duration": 0}`, "cycle_duration"},
		{"bad lane", "planner.json", `{"start_lane": 3}`, "start_lane"},
		{"bands overlap", "planner.json", `{"same_lane_half_width": 7}`, "same_lane_half_width"},
		{"empty path", "planner.json", `{"path_length": 0}`, "path_length"},
		{"no anchors", "planner.json", `{"anchor_count": 0}`, "anchor_count"},
		{"negative risk", "planner.json", `{"risk_behind": -5}`, "risk_behind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := LoadPlannerConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPlannerConfigMissingFile(t *testing.T) {
	_, err := LoadPlannerConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadPlannerConfigTooLarge(t *testing.T) {
	path := writeFile(t, "big.json", `{"speed_limit": 40}`+strings.Repeat(" ", maxConfigFileSize))
	_, err := LoadPlannerConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}
