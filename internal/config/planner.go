// Package config loads the planner's tuning parameters.
//
// Every field is optional: a nil pointer means "use the default", so a
// partial file only overrides what it names.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is the path to the canonical planner defaults file.
const DefaultConfigPath = "config/planner.defaults.json"

// maxConfigFileSize caps config files at 1MB.
const maxConfigFileSize = 1 * 1024 * 1024

// PlannerConfig is the root configuration. The same schema is accepted as
// JSON or YAML and is reported back by /api/config.
type PlannerConfig struct {
	// Map
	TrackLength *float64 `json:"track_length,omitempty" yaml:"track_length,omitempty"`
	StartLane   *int     `json:"start_lane,omitempty" yaml:"start_lane,omitempty"`

	// Behavior
	SameLaneHalfWidth *float64 `json:"same_lane_half_width,omitempty" yaml:"same_lane_half_width,omitempty"`
	AdjacentLaneLimit *float64 `json:"adjacent_lane_limit,omitempty" yaml:"adjacent_lane_limit,omitempty"`
	TooCloseGap       *float64 `json:"too_close_gap,omitempty" yaml:"too_close_gap,omitempty"`
	RiskBehind        *float64 `json:"risk_behind,omitempty" yaml:"risk_behind,omitempty"`
	RiskAhead         *float64 `json:"risk_ahead,omitempty" yaml:"risk_ahead,omitempty"`
	SpeedLimit        *float64 `json:"speed_limit,omitempty" yaml:"speed_limit,omitempty"`
	SpeedIncrement    *float64 `json:"speed_increment,omitempty" yaml:"speed_increment,omitempty"`
	SpeedDecrement    *float64 `json:"speed_decrement,omitempty" yaml:"speed_decrement,omitempty"`

	// Trajectory
	PathLength    *int     `json:"path_length,omitempty" yaml:"path_length,omitempty"`
	CycleDuration *float64 `json:"cycle_duration,omitempty" yaml:"cycle_duration,omitempty"`
	AnchorSpacing *float64 `json:"anchor_spacing,omitempty" yaml:"anchor_spacing,omitempty"`
	AnchorCount   *int     `json:"anchor_count,omitempty" yaml:"anchor_count,omitempty"`
	LookaheadX    *float64 `json:"lookahead_x,omitempty" yaml:"lookahead_x,omitempty"`
	SpeedFactor   *float64 `json:"speed_factor,omitempty" yaml:"speed_factor,omitempty"`
}

// EmptyPlannerConfig returns a PlannerConfig with every field unset.
func EmptyPlannerConfig() *PlannerConfig {
	return &PlannerConfig{}
}

// LoadPlannerConfig loads a PlannerConfig from a .json, .yaml or .yml file
// and validates it.
func LoadPlannerConfig(path string) (*PlannerConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPlannerConfig()
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	} else {
		err = yaml.UnmarshalStrict(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, looking in the current
// directory and its parents. It panics if the file cannot be loaded and is
// meant for tests.
func MustLoadDefaultConfig() *PlannerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadPlannerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set values are usable.
func (c *PlannerConfig) Validate() error {
	positive := map[string]*float64{
		"track_length":    c.TrackLength,
		"too_close_gap":   c.TooCloseGap,
		"speed_limit":     c.SpeedLimit,
		"speed_increment": c.SpeedIncrement,
		"speed_decrement": c.SpeedDecrement,
		"cycle_duration":  c.CycleDuration,
		"anchor_spacing":  c.AnchorSpacing,
		"lookahead_x":     c.LookaheadX,
		"speed_factor":    c.SpeedFactor,
	}
	for name, v := range positive {
		if v != nil && !(*v > 0) {
			return fmt.Errorf("%s must be positive, got %v", name, *v)
		}
	}

	if c.RiskBehind != nil && *c.RiskBehind < 0 {
		return fmt.Errorf("risk_behind must be non-negative, got %v", *c.RiskBehind)
	}
	if c.RiskAhead != nil && *c.RiskAhead < 0 {
		return fmt.Errorf("risk_ahead must be non-negative, got %v", *c.RiskAhead)
	}
	if c.GetSameLaneHalfWidth() <= 0 || c.GetSameLaneHalfWidth() >= c.GetAdjacentLaneLimit() {
		return fmt.Errorf("same_lane_half_width (%v) must be positive and below adjacent_lane_limit (%v)",
			c.GetSameLaneHalfWidth(), c.GetAdjacentLaneLimit())
	}
	if c.StartLane != nil && (*c.StartLane < 0 || *c.StartLane > 2) {
		return fmt.Errorf("start_lane must be 0, 1 or 2, got %d", *c.StartLane)
	}
	if c.PathLength != nil && *c.PathLength < 1 {
		return fmt.Errorf("path_length must be at least 1, got %d", *c.PathLength)
	}
	if c.AnchorCount != nil && *c.AnchorCount < 1 {
		return fmt.Errorf("anchor_count must be at least 1, got %d", *c.AnchorCount)
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetTrackLength returns the arc length at which s wraps.
func (c *PlannerConfig) GetTrackLength() float64 { return getFloat(c.TrackLength, 6945.554) }

// GetStartLane returns the lane the car starts in.
func (c *PlannerConfig) GetStartLane() int { return getInt(c.StartLane, 1) }

func (c *PlannerConfig) GetSameLaneHalfWidth() float64 { return getFloat(c.SameLaneHalfWidth, 2) }
func (c *PlannerConfig) GetAdjacentLaneLimit() float64 { return getFloat(c.AdjacentLaneLimit, 6) }
func (c *PlannerConfig) GetTooCloseGap() float64       { return getFloat(c.TooCloseGap, 20) }
func (c *PlannerConfig) GetRiskBehind() float64        { return getFloat(c.RiskBehind, 20) }
func (c *PlannerConfig) GetRiskAhead() float64         { return getFloat(c.RiskAhead, 10) }
func (c *PlannerConfig) GetSpeedLimit() float64        { return getFloat(c.SpeedLimit, 49.5) }
func (c *PlannerConfig) GetSpeedIncrement() float64    { return getFloat(c.SpeedIncrement, 0.224) }
func (c *PlannerConfig) GetSpeedDecrement() float64    { return getFloat(c.SpeedDecrement, 0.324) }

func (c *PlannerConfig) GetPathLength() int        { return getInt(c.PathLength, 50) }
func (c *PlannerConfig) GetCycleDuration() float64 { return getFloat(c.CycleDuration, 0.02) }
func (c *PlannerConfig) GetAnchorSpacing() float64 { return getFloat(c.AnchorSpacing, 30) }
func (c *PlannerConfig) GetAnchorCount() int       { return getInt(c.AnchorCount, 3) }
func (c *PlannerConfig) GetLookaheadX() float64    { return getFloat(c.LookaheadX, 30) }
func (c *PlannerConfig) GetSpeedFactor() float64   { return getFloat(c.SpeedFactor, 2.24) }

// Effective returns a copy with every field set to its effective value.
func (c *PlannerConfig) Effective() *PlannerConfig {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	return &PlannerConfig{
		TrackLength:       f(c.GetTrackLength()),
		StartLane:         i(c.GetStartLane()),
		SameLaneHalfWidth: f(c.GetSameLaneHalfWidth()),
		AdjacentLaneLimit: f(c.GetAdjacentLaneLimit()),
		TooCloseGap:       f(c.GetTooCloseGap()),
		RiskBehind:        f(c.GetRiskBehind()),
		RiskAhead:         f(c.GetRiskAhead()),
		SpeedLimit:        f(c.GetSpeedLimit()),
		SpeedIncrement:    f(c.GetSpeedIncrement()),
		SpeedDecrement:    f(c.GetSpeedDecrement()),
		PathLength:        i(c.GetPathLength()),
		CycleDuration:     f(c.GetCycleDuration()),
		AnchorSpacing:     f(c.GetAnchorSpacing()),
		AnchorCount:       i(c.GetAnchorCount()),
		LookaheadX:        f(c.GetLookaheadX()),
		SpeedFactor:       f(c.GetSpeedFactor()),
	}
}
