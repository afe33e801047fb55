// Package geom holds the coordinate frames the planner moves between.
//
// Three frames are used: world (map x/y), Frenet (arc length s along the
// road centerline and lateral offset d) and a local vehicle frame whose
// origin and x-axis follow a reference pose. Each frame has its own point
// type so a value cannot silently cross frames.
package geom

import "math"

// WorldPoint is a position in map coordinates.
type WorldPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FrenetPoint is a road-relative position.
type FrenetPoint struct {
	S float64 `json:"s"`
	D float64 `json:"d"`
}

// LocalPoint is a position in a Frame's coordinates.
type LocalPoint struct {
	X float64
	Y float64
}

// Distance returns the Euclidean distance between two world points.
func Distance(a, b WorldPoint) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Heading returns the direction of travel from a to b in radians.
func Heading(from, to WorldPoint) float64 {
	return math.Atan2(to.Y-from.Y, to.X-from.X)
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Frame is a local coordinate frame with its origin at Origin and its
// x-axis pointing along Yaw.
type Frame struct {
	Origin WorldPoint
	Yaw    float64
}

// ToLocal translates then rotates p into the frame.
func (f Frame) ToLocal(p WorldPoint) LocalPoint {
	dx := p.X - f.Origin.X
	dy := p.Y - f.Origin.Y
	sin, cos := math.Sincos(f.Yaw)
	return LocalPoint{
		X: dx*cos + dy*sin,
		Y: dy*cos - dx*sin,
	}
}

// ToWorld rotates then translates p back into world coordinates.
func (f Frame) ToWorld(p LocalPoint) WorldPoint {
	sin, cos := math.Sincos(-f.Yaw)
	return WorldPoint{
		X: p.X*cos + p.Y*sin + f.Origin.X,
		Y: p.Y*cos - p.X*sin + f.Origin.Y,
	}
}
