// Package trajectory turns a lane and speed decision into the waypoint list
// sent back to the simulator.
//
// Each cycle the unconsumed tail of the previous path is kept verbatim and
// extended with points sampled from a spline that starts at the end of
// that tail and bends into the target lane 30, 60 and 90 units further
// down the road.
package trajectory

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/highway-planner/internal/geom"
	"github.com/banshee-data/highway-planner/internal/roadmap"
	"github.com/banshee-data/highway-planner/internal/units"
	"github.com/banshee-data/highway-planner/internal/vehicle"
)

// ErrTailTooLong is returned when the previous path holds more points than
// a whole trajectory.
var ErrTailTooLong = errors.New("trajectory: previous path longer than path length")

// Config controls trajectory length, timing and anchor placement.
type Config struct {
	PathLength    int     // points per trajectory
	CycleDuration float64 // seconds between consecutive points
	AnchorSpacing float64 // s distance between far anchors
	AnchorCount   int     // number of far anchors
	LookaheadX    float64 // local x used to size the sampling step
	SpeedFactor   float64 // reference speed / SpeedFactor = distance per second
}

// DefaultConfig matches the simulator controller: 50 points, 20 ms apart.
func DefaultConfig() Config {
	return Config{
		PathLength:    50,
		CycleDuration: 0.02,
		AnchorSpacing: 30,
		AnchorCount:   3,
		LookaheadX:    30,
		SpeedFactor:   units.SimSpeedFactor,
	}
}

// Input is everything Build needs for one cycle.
type Input struct {
	Previous       []geom.WorldPoint
	Ego            vehicle.EgoState
	Lane           int
	ReferenceSpeed float64
}

// Synthesizer builds trajectories on a road map. It holds no per-cycle
// state and is safe for concurrent use.
type Synthesizer struct {
	road *roadmap.Map
	cfg  Config
}

// NewSynthesizer returns a Synthesizer for road.
func NewSynthesizer(road *roadmap.Map, cfg Config) *Synthesizer {
	return &Synthesizer{road: road, cfg: cfg}
}

// minTailSpacing is the distance below which the last two previous-path
// points are treated as one point and give no heading.
const minTailSpacing = 1e-6

// ReferenceFrame returns the local frame new points are built in, plus the
// two anchors that pin the start of the curve to it.
//
// With a usable previous path the frame sits on its last point and faces
// along its last segment, so the heading carries over between cycles. With
// fewer than two points, or when the last two coincide, it sits on the car
// and faces along its reported heading, and a second anchor is invented
// one unit behind the car.
func ReferenceFrame(previous []geom.WorldPoint, ego vehicle.EgoState) (geom.Frame, [2]geom.WorldPoint) {
	if k := len(previous); k >= 2 {
		last, beforeLast := previous[k-1], previous[k-2]
		if geom.Distance(beforeLast, last) > minTailSpacing {
			return geom.Frame{Origin: last, Yaw: geom.Heading(beforeLast, last)},
				[2]geom.WorldPoint{beforeLast, last}
		}
	}
	behind := geom.WorldPoint{
		X: ego.Position.X - math.Cos(ego.Heading),
		Y: ego.Position.Y - math.Sin(ego.Heading),
	}
	return geom.Frame{Origin: ego.Position, Yaw: ego.Heading},
		[2]geom.WorldPoint{behind, ego.Position}
}

// Anchors returns the reference frame and the world anchor points: the two
// from ReferenceFrame followed by the far anchors on the lane center.
func (s *Synthesizer) Anchors(in Input) (geom.Frame, []geom.WorldPoint, error) {
	frame, start := ReferenceFrame(in.Previous, in.Ego)

	anchors := make([]geom.WorldPoint, 0, 2+s.cfg.AnchorCount)
	anchors = append(anchors, start[0], start[1])

	d := roadmap.LaneCenter(in.Lane)
	for i := 1; i <= s.cfg.AnchorCount; i++ {
		f := geom.FrenetPoint{S: s.road.WrapS(in.Ego.S + s.cfg.AnchorSpacing*float64(i)), D: d}
		p, err := s.road.ToCartesian(f)
		if err != nil {
			return frame, nil, fmt.Errorf("far anchor %d at s=%.3f: %w", i, f.S, err)
		}
		anchors = append(anchors, p)
	}
	return frame, anchors, nil
}

// Step returns the local x increment between new points: the chord to the
// lookahead point divided into pieces travelled in one cycle at speed.
func (s *Synthesizer) Step(spline *Spline, speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	targetX := s.cfg.LookaheadX
	targetDist := math.Hypot(targetX, spline.At(targetX))
	n := targetDist / (s.cfg.CycleDuration * speed / s.cfg.SpeedFactor)
	return targetX / n
}

// Build returns exactly PathLength points: the previous path unchanged,
// then new points sampled along the fitted spline.
func (s *Synthesizer) Build(in Input) ([]geom.WorldPoint, error) {
	if len(in.Previous) > s.cfg.PathLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrTailTooLong, len(in.Previous), s.cfg.PathLength)
	}

	frame, anchors, err := s.Anchors(in)
	if err != nil {
		return nil, err
	}
	local := make([]geom.LocalPoint, len(anchors))
	for i, a := range anchors {
		local[i] = frame.ToLocal(a)
	}
	spline, err := FitSpline(local)
	if err != nil {
		return nil, err
	}

	out := make([]geom.WorldPoint, 0, s.cfg.PathLength)
	out = append(out, in.Previous...)

	step := s.Step(spline, in.ReferenceSpeed)
	x := 0.0
	for len(out) < s.cfg.PathLength {
		x += step
		out = append(out, frame.ToWorld(geom.LocalPoint{X: x, Y: spline.At(x)}))
	}
	return out, nil
}
