package roadmap

import (
	"math"
	"sort"

	"github.com/banshee-data/highway-planner/internal/geom"
)

// signReference is the fixed point used to decide the sign of d. A point
// farther from it than its projection on the centerline gets a positive d.
// This is a heuristic tuned to the simulator map, where the reference lies
// inside the loop; it is not a general geometric test and can pick the
// wrong sign on other maps.
var signReference = geom.WorldPoint{X: 1000, Y: 2000}

// ClosestWaypoint returns the index of the waypoint nearest to p.
func (m *Map) ClosestWaypoint(p geom.WorldPoint) int {
	closest := 0
	closestLen := math.Inf(1)
	for i, wp := range m.waypoints {
		if d := geom.Distance(p, wp.Position); d < closestLen {
			closestLen = d
			closest = i
		}
	}
	return closest
}

// NextWaypoint returns the index of the closest waypoint that lies ahead of
// p when travelling along heading (radians). If the closest waypoint is
// more than 45° off the heading it is assumed to be behind, and the one
// after it is returned.
func (m *Map) NextWaypoint(p geom.WorldPoint, heading float64) int {
	closest := m.ClosestWaypoint(p)
	toWaypoint := geom.Heading(p, m.waypoints[closest].Position)

	angle := math.Abs(heading - toWaypoint)
	angle = math.Min(2*math.Pi-angle, angle)
	if angle > math.Pi/4 {
		closest = m.wrap(closest + 1)
	}
	return closest
}

// ToFrenet projects p onto the centerline segment ending at the next
// waypoint along heading (radians).
//
// s is the summed waypoint-to-waypoint distance up to the segment start
// plus the projected distance within the segment. d is the perpendicular
// distance to the segment, signed by the signReference heuristic.
func (m *Map) ToFrenet(p geom.WorldPoint, heading float64) geom.FrenetPoint {
	next := m.NextWaypoint(p, heading)
	prev := m.wrap(next - 1)

	start := m.waypoints[prev].Position
	end := m.waypoints[next].Position

	nx, ny := end.X-start.X, end.Y-start.Y
	xx, xy := p.X-start.X, p.Y-start.Y

	projNorm := (xx*nx + xy*ny) / (nx*nx + ny*ny)
	proj := geom.WorldPoint{X: projNorm * nx, Y: projNorm * ny}
	rel := geom.WorldPoint{X: xx, Y: xy}

	d := geom.Distance(rel, proj)

	center := geom.WorldPoint{X: signReference.X - start.X, Y: signReference.Y - start.Y}
	if geom.Distance(center, rel) <= geom.Distance(center, proj) {
		d = -d
	}

	s := m.chord[prev] + math.Hypot(proj.X, proj.Y)
	return geom.FrenetPoint{S: s, D: d}
}

// ToCartesian maps a Frenet point back to world coordinates by walking
// along the straight segment that contains s and stepping d to the right
// of travel.
//
// s must lie in [first waypoint s, TrackLength); callers wrap it with WrapS.
// Anything else returns ErrOutOfRange.
func (m *Map) ToCartesian(f geom.FrenetPoint) (geom.WorldPoint, error) {
	if !finite(f.S, f.D) || f.S < m.waypoints[0].S || f.S >= m.trackLength {
		return geom.WorldPoint{}, ErrOutOfRange
	}

	n := len(m.waypoints)
	// First waypoint at or after s; the segment starts one before it.
	prev := sort.Search(n, func(i int) bool { return m.waypoints[i].S >= f.S }) - 1
	if prev < 0 {
		prev = 0
	}
	next := m.wrap(prev + 1)

	start := m.waypoints[prev]
	heading := geom.Heading(start.Position, m.waypoints[next].Position)
	segS := f.S - start.S

	sinH, cosH := math.Sincos(heading)
	sinP, cosP := math.Sincos(heading - math.Pi/2)
	return geom.WorldPoint{
		X: start.Position.X + segS*cosH + f.D*cosP,
		Y: start.Position.Y + segS*sinH + f.D*sinP,
	}, nil
}
