// Package planner runs one planning cycle per telemetry snapshot: it
// decides lane and speed, then builds the trajectory for that decision.
//
// PlanCycle is the whole computation as a pure function. Planner wraps it
// with the state that survives between cycles and serializes callers so
// that state is read and written once per cycle, in order.
package planner

import (
	"fmt"
	"sync"

	"github.com/banshee-data/highway-planner/internal/behavior"
	"github.com/banshee-data/highway-planner/internal/config"
	"github.com/banshee-data/highway-planner/internal/geom"
	"github.com/banshee-data/highway-planner/internal/monitoring"
	"github.com/banshee-data/highway-planner/internal/roadmap"
	"github.com/banshee-data/highway-planner/internal/trajectory"
	"github.com/banshee-data/highway-planner/internal/vehicle"
)

// Config groups the behavior and trajectory settings.
type Config struct {
	Behavior   behavior.Config
	Trajectory trajectory.Config
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		Behavior:   behavior.DefaultConfig(),
		Trajectory: trajectory.DefaultConfig(),
	}
}

// ConfigFromTuning builds a Config from the loaded planner configuration.
func ConfigFromTuning(cfg *config.PlannerConfig) Config {
	return Config{
		Behavior:   behavior.ConfigFromTuning(cfg),
		Trajectory: trajectory.ConfigFromTuning(cfg),
	}
}

// InitialStateFromTuning returns the starting state for the configured lane.
func InitialStateFromTuning(cfg *config.PlannerConfig) behavior.State {
	state := behavior.InitialState()
	state.Lane = cfg.GetStartLane()
	return state
}

// Result is the outcome of one cycle.
type Result struct {
	Cycle    uint64
	Ego      vehicle.EgoState
	Decision behavior.Decision
	Vehicles []vehicle.TrackedVehicle
	// Kept is the number of leading Path points copied from the previous
	// path.
	Kept int
	Path []geom.WorldPoint
}

// NextXY splits Path into the coordinate lists the simulator expects.
func (r Result) NextXY() (xs, ys []float64) {
	xs = make([]float64, len(r.Path))
	ys = make([]float64, len(r.Path))
	for i, p := range r.Path {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return xs, ys
}

// PlanCycle plans one cycle from state and returns the result along with
// the state for the next cycle. On error state is returned unchanged.
func PlanCycle(road *roadmap.Map, cfg Config, state behavior.State, t Telemetry) (Result, behavior.State, error) {
	if err := t.Validate(); err != nil {
		return Result{}, state, err
	}

	ego := t.Ego()
	previous := t.PreviousPath()
	vehicles := vehicle.TrackAll(t.SensorFusion, len(previous), cfg.Trajectory.CycleDuration)

	next := state
	dec := behavior.Decide(ego, vehicles, &next, cfg.Behavior)

	syn := trajectory.NewSynthesizer(road, cfg.Trajectory)
	path, err := syn.Build(trajectory.Input{
		Previous:       previous,
		Ego:            ego,
		Lane:           next.Lane,
		ReferenceSpeed: next.ReferenceSpeed,
	})
	if err != nil {
		return Result{}, state, fmt.Errorf("build trajectory: %w", err)
	}

	return Result{
		Ego:      ego,
		Decision: dec,
		Vehicles: vehicles,
		Kept:     len(previous),
		Path:     path,
	}, next, nil
}

// Planner owns the lane and speed carried across cycles.
type Planner struct {
	road *roadmap.Map
	cfg  Config

	mu     sync.Mutex
	state  behavior.State
	cycles uint64
	last   *Result
}

// New returns a Planner on road starting from initial.
func New(road *roadmap.Map, cfg Config, initial behavior.State) *Planner {
	return &Planner{road: road, cfg: cfg, state: initial}
}

// Road returns the map the planner drives on.
func (p *Planner) Road() *roadmap.Map { return p.road }

// Config returns the planner settings.
func (p *Planner) Config() Config { return p.cfg }

// Plan runs one cycle. Concurrent calls run one at a time. A failed cycle
// leaves the state untouched and is not counted.
func (p *Planner) Plan(t Telemetry) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, next, err := PlanCycle(p.road, p.cfg, p.state, t)
	if err != nil {
		return Result{}, err
	}
	p.cycles++
	res.Cycle = p.cycles
	p.state = next
	p.last = &res

	if res.Decision.LaneChanged() {
		monitoring.Opsf("change to lane %d (from %d) at s=%.1f", res.Decision.Lane, res.Decision.PreviousLane, res.Ego.S)
	}
	monitoring.Diagf("cycle %d: lane=%d speed=%.3f too_close=%t kept=%d s=%.2f d=%.2f cars=%d",
		res.Cycle, res.Decision.Lane, res.Decision.ReferenceSpeed, res.Decision.TooClose,
		res.Kept, res.Ego.S, res.Ego.D, len(res.Vehicles))
	return res, nil
}

// State returns the current lane and reference speed.
func (p *Planner) State() behavior.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cycles returns the number of completed cycles.
func (p *Planner) Cycles() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// Last returns the most recent successful result.
func (p *Planner) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}
