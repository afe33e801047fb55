// Package roadmap holds the highway centerline and the transforms between
// world and Frenet coordinates along it.
//
// A Map is built once at startup and is read-only afterwards, so it can be
// shared between goroutines without locking.
package roadmap

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/highway-planner/internal/geom"
)

var (
	// ErrEmptyMap is returned when a map has too few waypoints to plan on.
	ErrEmptyMap = errors.New("roadmap: map needs at least two waypoints")
	// ErrOutOfRange is returned when an arc length falls outside the map.
	ErrOutOfRange = errors.New("roadmap: s outside map range")
)

// DefaultTrackLength is the arc length at which the simulator highway loop
// wraps back to s = 0.
const DefaultTrackLength = 6945.554

// normalTolerance bounds how far a lane normal may stray from unit length.
const normalTolerance = 0.01

// Normal is the unit vector pointing away from the road center.
type Normal struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Waypoint is one sample of the road centerline.
type Waypoint struct {
	S        float64         `json:"s"`
	Position geom.WorldPoint `json:"position"`
	Normal   Normal          `json:"normal"`
}

// Map is an immutable closed loop of centerline waypoints.
type Map struct {
	waypoints   []Waypoint
	trackLength float64

	// chord[i] is the summed straight-line distance from waypoint 0 to i.
	chord []float64
}

// New validates waypoints and builds a Map. The waypoints are copied.
func New(waypoints []Waypoint, trackLength float64) (*Map, error) {
	if len(waypoints) < 2 {
		return nil, ErrEmptyMap
	}
	for i, wp := range waypoints {
		if !finite(wp.S, wp.Position.X, wp.Position.Y, wp.Normal.DX, wp.Normal.DY) {
			return nil, fmt.Errorf("roadmap: waypoint %d has a non-finite value", i)
		}
		if n := math.Hypot(wp.Normal.DX, wp.Normal.DY); math.Abs(n-1) > normalTolerance {
			return nil, fmt.Errorf("roadmap: waypoint %d normal has length %.4f, want 1", i, n)
		}
		if i == 0 {
			continue
		}
		prev := waypoints[i-1]
		if wp.S <= prev.S {
			return nil, fmt.Errorf("roadmap: waypoint %d s=%.3f not after previous s=%.3f", i, wp.S, prev.S)
		}
		if wp.Position == prev.Position {
			return nil, fmt.Errorf("roadmap: waypoints %d and %d coincide", i-1, i)
		}
	}
	last := waypoints[len(waypoints)-1]
	if !finite(trackLength) || trackLength <= last.S {
		return nil, fmt.Errorf("roadmap: track length %.3f must exceed last waypoint s=%.3f", trackLength, last.S)
	}
	if last.Position == waypoints[0].Position {
		return nil, fmt.Errorf("roadmap: last waypoint repeats the first; the loop closes implicitly")
	}

	m := &Map{
		waypoints:   append([]Waypoint(nil), waypoints...),
		trackLength: trackLength,
		chord:       make([]float64, len(waypoints)),
	}
	for i := 1; i < len(waypoints); i++ {
		m.chord[i] = m.chord[i-1] + geom.Distance(waypoints[i-1].Position, waypoints[i].Position)
	}
	return m, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Len returns the number of waypoints.
func (m *Map) Len() int { return len(m.waypoints) }

// Waypoint returns waypoint i, wrapping around the loop.
func (m *Map) Waypoint(i int) Waypoint {
	return m.waypoints[m.wrap(i)]
}

// Waypoints returns a copy of all waypoints.
func (m *Map) Waypoints() []Waypoint {
	return append([]Waypoint(nil), m.waypoints...)
}

// TrackLength returns the arc length at which s wraps to zero.
func (m *Map) TrackLength() float64 { return m.trackLength }

// WrapS folds s into [0, TrackLength).
func (m *Map) WrapS(s float64) float64 {
	s = math.Mod(s, m.trackLength)
	if s < 0 {
		s += m.trackLength
	}
	return s
}

func (m *Map) wrap(i int) int {
	n := len(m.waypoints)
	return ((i % n) + n) % n
}
