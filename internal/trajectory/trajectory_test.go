package trajectory

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/highway-planner/internal/config"
	"github.com/banshee-data/highway-planner/internal/geom"
	"github.com/banshee-data/highway-planner/internal/roadmap"
	"github.com/banshee-data/highway-planner/internal/testutil"
	"github.com/banshee-data/highway-planner/internal/vehicle"
)

func circleMap(t *testing.T) *roadmap.Map {
	t.Helper()
	waypoints, err := roadmap.Parse(strings.NewReader(testutil.CircleTrackCSV()))
	require.NoError(t, err)
	m, err := roadmap.New(waypoints, testutil.TrackLength())
	require.NoError(t, err)
	return m
}

// egoAt places the car on the center of lane at s, facing along the road.
func egoAt(t *testing.T, m *roadmap.Map, s float64, lane int, speed float64) vehicle.EgoState {
	t.Helper()
	d := roadmap.LaneCenter(lane)
	p, err := m.ToCartesian(geom.FrenetPoint{S: s, D: d})
	require.NoError(t, err)
	ahead, err := m.ToCartesian(geom.FrenetPoint{S: s + 0.5, D: d})
	require.NoError(t, err)
	return vehicle.EgoState{Position: p, Heading: geom.Heading(p, ahead), Speed: speed, S: s, D: d}
}

func TestFitSplinePassesThroughAnchors(t *testing.T) {
	t.Parallel()

	anchors := []geom.LocalPoint{{X: -1, Y: 0}, {X: 0, Y: 0}, {X: 30, Y: 1}, {X: 60, Y: 3.9}, {X: 90, Y: 8.5}}
	s, err := FitSpline(anchors)
	require.NoError(t, err)
	for _, a := range anchors {
		assert.InDelta(t, a.Y, s.At(a.X), 1e-9)
	}
	minX, maxX := s.Domain()
	assert.Equal(t, -1.0, minX)
	assert.Equal(t, 90.0, maxX)

	// Continuous first derivative across an interior anchor.
	assert.InDelta(t, s.Slope(30-1e-7), s.Slope(30+1e-7), 1e-5)
}

func TestFitSplineDegenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		anchors []geom.LocalPoint
	}{
		{"too few", []geom.LocalPoint{{X: 0}, {X: 1}}},
		{"coincident", []geom.LocalPoint{{X: 0}, {X: 0}, {X: 30, Y: 1}}},
		{"decreasing", []geom.LocalPoint{{X: 0}, {X: 30}, {X: 20}}},
		{"nan", []geom.LocalPoint{{X: 0}, {X: 10, Y: math.NaN()}, {X: 20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitSpline(tt.anchors)
			assert.ErrorIs(t, err, ErrDegenerateAnchors)
		})
	}
}

func TestReferenceFrame(t *testing.T) {
	t.Parallel()

	ego := vehicle.EgoState{Position: geom.WorldPoint{X: 10, Y: 20}, Heading: math.Pi / 2}

	t.Run("no previous path uses the car pose", func(t *testing.T) {
		frame, start := ReferenceFrame(nil, ego)
		assert.Equal(t, ego.Position, frame.Origin)
		assert.Equal(t, ego.Heading, frame.Yaw)
		assert.InDelta(t, 10.0, start[0].X, 1e-12)
		assert.InDelta(t, 19.0, start[0].Y, 1e-12)
		assert.Equal(t, ego.Position, start[1])
	})

	t.Run("single point uses the car pose", func(t *testing.T) {
		frame, _ := ReferenceFrame([]geom.WorldPoint{{X: 11, Y: 21}}, ego)
		assert.Equal(t, ego.Position, frame.Origin)
	})

	t.Run("previous path sets heading", func(t *testing.T) {
		prev := []geom.WorldPoint{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 6, Y: 6}}
		frame, start := ReferenceFrame(prev, ego)
		assert.Equal(t, prev[2], frame.Origin)
		assert.InDelta(t, math.Pi/4, frame.Yaw, 1e-12)
		assert.Equal(t, [2]geom.WorldPoint{prev[1], prev[2]}, start)
	})

	t.Run("stalled previous path falls back to the car pose", func(t *testing.T) {
		prev := []geom.WorldPoint{{X: 6, Y: 6}, {X: 6, Y: 6}}
		frame, _ := ReferenceFrame(prev, ego)
		assert.Equal(t, ego.Position, frame.Origin)
	})
}

func TestBuildFromStandstillScenario(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	ego := egoAt(t, m, 100, 1, 40)
	speed := 40.224
	path, err := syn.Build(Input{Ego: ego, Lane: 1, ReferenceSpeed: speed})
	require.NoError(t, err)
	require.Len(t, path, 50)

	wantStep := speed / 2.24 * 0.02
	prev := ego.Position
	for i, p := range path {
		assert.InDelta(t, wantStep, geom.Distance(prev, p), 0.01, "point %d", i)
		prev = p
	}

	// The first new point continues the heading of the invented predecessor.
	assert.InDelta(t, 0, angleDiff(geom.Heading(ego.Position, path[0]), ego.Heading), 0.01)

	// Points stay on the lane-1 center.
	for i, p := range path {
		f := m.ToFrenet(p, ego.Heading)
		assert.InDelta(t, roadmap.LaneCenter(1), f.D, 0.1, "point %d", i)
	}
}

func TestBuildKeepsPreviousTail(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	first, err := syn.Build(Input{Ego: egoAt(t, m, 300, 1, 30), Lane: 1, ReferenceSpeed: 30})
	require.NoError(t, err)

	for consumed := 0; consumed <= 50; consumed++ {
		tail := append([]geom.WorldPoint(nil), first[consumed:]...)
		ego := egoAt(t, m, 300, 1, 30)
		if len(tail) > 0 {
			end := tail[len(tail)-1]
			ego.S = m.ToFrenet(end, ego.Heading).S
		}

		path, err := syn.Build(Input{Previous: tail, Ego: ego, Lane: 1, ReferenceSpeed: 30.224})
		require.NoError(t, err, "consumed %d", consumed)
		require.Len(t, path, 50, "consumed %d", consumed)
		if len(tail) > 0 {
			assert.Equal(t, tail, path[:len(tail)], "consumed %d", consumed)
		}
	}
}

func TestBuildChangingLaneBendsOutward(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	ego := egoAt(t, m, 500, 1, 45)
	path, err := syn.Build(Input{Ego: ego, Lane: 2, ReferenceSpeed: 45})
	require.NoError(t, err)

	start := m.ToFrenet(path[0], ego.Heading).D
	end := m.ToFrenet(path[len(path)-1], ego.Heading).D
	assert.Greater(t, end, start)
	assert.Less(t, end, roadmap.LaneCenter(2))
}

func TestBuildStoppedCarStaysPut(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	ego := egoAt(t, m, 100, 1, 0)
	path, err := syn.Build(Input{Ego: ego, Lane: 1, ReferenceSpeed: 0})
	require.NoError(t, err)
	require.Len(t, path, 50)
	for _, p := range path {
		assert.InDelta(t, 0, geom.Distance(ego.Position, p), 1e-9)
	}
}

func TestBuildWrapsAnchorsAcrossSeam(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	ego := egoAt(t, m, m.TrackLength()-40, 1, 40)
	path, err := syn.Build(Input{Ego: ego, Lane: 1, ReferenceSpeed: 40})
	require.NoError(t, err)
	assert.Len(t, path, 50)
}

func TestBuildRejectsLongTail(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	tail := make([]geom.WorldPoint, 51)
	_, err := syn.Build(Input{Previous: tail, Ego: egoAt(t, m, 100, 1, 0), Lane: 1})
	assert.ErrorIs(t, err, ErrTailTooLong)
}

func TestBuildReportsDegenerateAnchors(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	syn := NewSynthesizer(m, DefaultConfig())

	// A previous path ending well past the far anchors folds the curve back.
	ego := egoAt(t, m, 100, 1, 40)
	far := egoAt(t, m, 300, 1, 40)
	tail := []geom.WorldPoint{far.Position, {X: far.Position.X + math.Cos(far.Heading), Y: far.Position.Y + math.Sin(far.Heading)}}
	_, err := syn.Build(Input{Previous: tail, Ego: ego, Lane: 1, ReferenceSpeed: 40})
	assert.ErrorIs(t, err, ErrDegenerateAnchors)
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}

func TestConfigFromTuning(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromTuning(config.EmptyPlannerConfig()))
	assert.Equal(t, DefaultConfig(), ConfigFromTuning(config.MustLoadDefaultConfig()))
}
