// Package vehicle holds the per-cycle view of the ego car and of the other
// cars reported by sensor fusion.
package vehicle

import (
	"math"

	"github.com/samber/lo"

	"github.com/banshee-data/highway-planner/internal/geom"
)

// EgoState is the ego car's pose for one planning cycle.
//
// When the previous path still has points, S is the arc length at the end
// of that path rather than the car's current position, so planning starts
// where the pending motion will leave the car.
type EgoState struct {
	Position geom.WorldPoint
	Heading  float64 // radians
	Speed    float64 // simulator speed units (mph)
	S        float64
	D        float64
}

// SensorReading is one sensor-fusion row: id, x, y, vx, vy, s, d.
type SensorReading struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	S  float64 `json:"s"`
	D  float64 `json:"d"`
}

// Speed returns the magnitude of the reading's velocity.
func (r SensorReading) Speed() float64 {
	return math.Hypot(r.VX, r.VY)
}

// TrackedVehicle is another car reduced to what the behavior planner needs.
type TrackedVehicle struct {
	ID    int     `json:"id"`
	D     float64 `json:"d"`
	S     float64 `json:"s"`
	Speed float64 `json:"speed"`
}

// Track converts a reading into a TrackedVehicle whose S is projected to
// where the car will be once the pending path points have been consumed,
// one point per cycle seconds.
func Track(r SensorReading, pending int, cycle float64) TrackedVehicle {
	speed := r.Speed()
	return TrackedVehicle{
		ID:    r.ID,
		D:     r.D,
		S:     r.S + float64(pending)*cycle*speed,
		Speed: speed,
	}
}

// TrackAll applies Track to every reading.
func TrackAll(readings []SensorReading, pending int, cycle float64) []TrackedVehicle {
	return lo.Map(readings, func(r SensorReading, _ int) TrackedVehicle {
		return Track(r, pending, cycle)
	})
}
