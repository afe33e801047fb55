package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/highway-planner/internal/geom"
	"github.com/banshee-data/highway-planner/internal/vehicle"
)

// ErrMalformedTelemetry is returned when a telemetry snapshot cannot be
// planned from. The cycle is skipped and nothing is sent back.
var ErrMalformedTelemetry = errors.New("planner: malformed telemetry")

// Telemetry is one simulator snapshot. Yaw is in degrees, as sent by the
// simulator; everything downstream works in radians.
type Telemetry struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	S     float64 `json:"s"`
	D     float64 `json:"d"`
	Yaw   float64 `json:"yaw"`
	Speed float64 `json:"speed"`

	PreviousPathX []float64 `json:"previous_path_x"`
	PreviousPathY []float64 `json:"previous_path_y"`
	EndPathS      float64   `json:"end_path_s"`
	EndPathD      float64   `json:"end_path_d"`

	SensorFusion []vehicle.SensorReading `json:"sensor_fusion"`
}

// Validate reports ErrMalformedTelemetry for mismatched previous path
// coordinates or non-finite values.
func (t Telemetry) Validate() error {
	if len(t.PreviousPathX) != len(t.PreviousPathY) {
		return fmt.Errorf("%w: previous_path_x has %d points, previous_path_y has %d",
			ErrMalformedTelemetry, len(t.PreviousPathX), len(t.PreviousPathY))
	}
	if !finite(t.X, t.Y, t.S, t.D, t.Yaw, t.Speed) {
		return fmt.Errorf("%w: non-finite ego pose", ErrMalformedTelemetry)
	}
	if len(t.PreviousPathX) > 0 && !finite(t.EndPathS, t.EndPathD) {
		return fmt.Errorf("%w: non-finite end of path", ErrMalformedTelemetry)
	}
	for i := range t.PreviousPathX {
		if !finite(t.PreviousPathX[i], t.PreviousPathY[i]) {
			return fmt.Errorf("%w: non-finite previous path point %d", ErrMalformedTelemetry, i)
		}
	}
	for _, r := range t.SensorFusion {
		if !finite(r.VX, r.VY, r.S, r.D) {
			return fmt.Errorf("%w: non-finite sensor fusion record for car %d", ErrMalformedTelemetry, r.ID)
		}
	}
	return nil
}

// PreviousPath returns the unconsumed tail as world points.
func (t Telemetry) PreviousPath() []geom.WorldPoint {
	path := make([]geom.WorldPoint, len(t.PreviousPathX))
	for i := range path {
		path[i] = geom.WorldPoint{X: t.PreviousPathX[i], Y: t.PreviousPathY[i]}
	}
	return path
}

// Ego returns the car's pose for planning. With pending path points, S is
// moved to the end of that path.
func (t Telemetry) Ego() vehicle.EgoState {
	ego := vehicle.EgoState{
		Position: geom.WorldPoint{X: t.X, Y: t.Y},
		Heading:  geom.DegToRad(t.Yaw),
		Speed:    t.Speed,
		S:        t.S,
		D:        t.D,
	}
	if len(t.PreviousPathX) > 0 {
		ego.S = t.EndPathS
	}
	return ego
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
