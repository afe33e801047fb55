// Package behavior decides, once per cycle, whether the ego car keeps its
// lane, slows down or changes lane, and by how much the reference speed
// moves.
//
// The policy is a single greedy step: it only looks at the car directly
// ahead in the current lane and at cars alongside in the neighbouring
// lanes. There is no cost comparison between lanes.
package behavior

import (
	"math"

	"github.com/banshee-data/highway-planner/internal/roadmap"
	"github.com/banshee-data/highway-planner/internal/vehicle"
)

// Config holds the thresholds of the lane and speed policy. Distances are
// in map units, speeds in simulator units (mph).
type Config struct {
	SameLaneHalfWidth float64 // |Δd| below this is the ego lane
	AdjacentLaneLimit float64 // |Δd| below this (and ≥ SameLaneHalfWidth) is a neighbouring lane
	TooCloseGap       float64 // a car ahead nearer than this triggers slowing
	RiskBehind        float64 // neighbouring cars within this distance behind block a change
	RiskAhead         float64 // neighbouring cars within this distance ahead block a change
	SpeedLimit        float64
	SpeedIncrement    float64
	SpeedDecrement    float64
}

// DefaultConfig returns the policy the simulator was tuned with.
func DefaultConfig() Config {
	return Config{
		SameLaneHalfWidth: 2,
		AdjacentLaneLimit: 6,
		TooCloseGap:       20,
		RiskBehind:        20,
		RiskAhead:         10,
		SpeedLimit:        49.5,
		SpeedIncrement:    0.224,
		SpeedDecrement:    0.324,
	}
}

// State is the planner memory carried from one cycle to the next. It is
// owned by the cycle driver and only changed by Decide.
type State struct {
	Lane           int     `json:"lane"`
	ReferenceSpeed float64 `json:"reference_speed"`
}

// InitialState is the state at process start: middle lane, standing still.
func InitialState() State {
	return State{Lane: 1}
}

// Decision records what Decide saw and did in one cycle.
type Decision struct {
	TooClose     bool
	PreviousLane int
	Lane         int
	// Risk lists, per lane, the IDs of neighbouring cars that block a
	// change into that lane.
	Risk           [roadmap.LaneCount][]int
	PreviousSpeed  float64
	ReferenceSpeed float64
}

// LaneChanged reports whether the decision moved the car to another lane.
func (d Decision) LaneChanged() bool {
	return d.Lane != d.PreviousLane
}

// Blocked reports whether any car blocks a change into lane.
func (d Decision) Blocked(lane int) bool {
	return len(d.Risk[lane]) > 0
}

// laneCandidates lists, in order of preference, the lanes tried when the
// car ahead is too close.
var laneCandidates = [roadmap.LaneCount][]int{
	0: {1},
	1: {0, 2},
	2: {1},
}

// Decide classifies the tracked vehicles around ego, updates state in place
// and returns what it decided.
func Decide(ego vehicle.EgoState, vehicles []vehicle.TrackedVehicle, state *State, cfg Config) Decision {
	dec := Decision{
		PreviousLane:  state.Lane,
		PreviousSpeed: state.ReferenceSpeed,
	}
	laneCenter := roadmap.LaneCenter(state.Lane)

	for _, v := range vehicles {
		diff := math.Abs(laneCenter - v.D)
		gap := v.S - ego.S
		switch {
		case diff < cfg.SameLaneHalfWidth:
			if gap > 0 && gap < cfg.TooCloseGap {
				dec.TooClose = true
			}
		case diff < cfg.AdjacentLaneLimit:
			if gap > -cfg.RiskBehind && gap < cfg.RiskAhead {
				lane := roadmap.LaneOf(v.D)
				dec.Risk[lane] = append(dec.Risk[lane], v.ID)
			}
		}
	}

	if dec.TooClose {
		state.ReferenceSpeed = math.Max(0, state.ReferenceSpeed-cfg.SpeedDecrement)
		if roadmap.ValidLane(state.Lane) {
			for _, lane := range laneCandidates[state.Lane] {
				if !dec.Blocked(lane) {
					state.Lane = lane
					break
				}
			}
		}
	} else if state.ReferenceSpeed < cfg.SpeedLimit {
		// Not clamped: the last step may overshoot the limit by less than
		// one increment.
		state.ReferenceSpeed += cfg.SpeedIncrement
	}

	dec.Lane = state.Lane
	dec.ReferenceSpeed = state.ReferenceSpeed
	return dec
}
