// Package testutil provides shared test fixtures and helpers.
//
// The synthetic track is a counterclockwise circle around the point the
// road map uses to sign lateral offsets, so positive d points away from the
// circle center exactly as it does on the simulator highway.
package testutil

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

// Circle track parameters.
const (
	TrackCenterX   = 1000.0
	TrackCenterY   = 2000.0
	TrackRadius    = 500.0
	TrackWaypoints = 400
)

// TrackChord returns the straight-line distance between consecutive
// circle-track waypoints.
func TrackChord() float64 {
	return 2 * TrackRadius * math.Sin(math.Pi/TrackWaypoints)
}

// TrackLength returns the loop length of the circle track measured along
// its chords, which is where s wraps to zero.
func TrackLength() float64 {
	return TrackChord() * TrackWaypoints
}

// CircleTrackCSV renders the circle track in the "x y s dx dy" waypoint
// file format.
func CircleTrackCSV() string {
	var b strings.Builder
	chord := TrackChord()
	for i := 0; i < TrackWaypoints; i++ {
		theta := 2 * math.Pi * float64(i) / TrackWaypoints
		cos, sin := math.Cos(theta), math.Sin(theta)
		fmt.Fprintf(&b, "%.12f %.12f %.12f %.12f %.12f\n",
			TrackCenterX+TrackRadius*cos,
			TrackCenterY+TrackRadius*sin,
			chord*float64(i),
			cos, sin,
		)
	}
	return b.String()
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

