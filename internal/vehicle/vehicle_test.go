package vehicle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTrackProjectsAlongPendingPath(t *testing.T) {
	t.Parallel()

	r := SensorReading{ID: 4, X: 900, Y: 1130, VX: 3, VY: 4, S: 120, D: 6.2}
	pending, cycle, speed := 40, 0.02, 5.0
	got := Track(r, pending, cycle)

	want := TrackedVehicle{ID: 4, D: 6.2, S: 120 + float64(pending)*cycle*speed, Speed: speed}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Track() mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackWithoutPendingPath(t *testing.T) {
	t.Parallel()

	r := SensorReading{ID: 1, VX: 20, S: 55, D: 2}
	assert.Equal(t, 55.0, Track(r, 0, 0.02).S)
}

func TestTrackAll(t *testing.T) {
	t.Parallel()

	readings := []SensorReading{
		{ID: 0, VX: 10, S: 10, D: 2},
		{ID: 1, VY: 10, S: 20, D: 10},
	}
	got := TrackAll(readings, 10, 0.02)
	assert.Len(t, got, 2)
	assert.InDelta(t, 12.0, got[0].S, 1e-9)
	assert.InDelta(t, 22.0, got[1].S, 1e-9)
	assert.Equal(t, 1, got[1].ID)

	assert.Empty(t, TrackAll(nil, 10, 0.02))
}
