package planner

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/highway-planner/internal/behavior"
	"github.com/banshee-data/highway-planner/internal/config"
	"github.com/banshee-data/highway-planner/internal/geom"
	"github.com/banshee-data/highway-planner/internal/monitoring"
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

// telemetryAt reports the car on the center of lane at s, facing along the
// road, with an empty previous path.
func telemetryAt(t *testing.T, m *roadmap.Map, s float64, lane int, speed float64) Telemetry {
	t.Helper()
	d := roadmap.LaneCenter(lane)
	p, err := m.ToCartesian(geom.FrenetPoint{S: s, D: d})
	require.NoError(t, err)
	ahead, err := m.ToCartesian(geom.FrenetPoint{S: s + 0.5, D: d})
	require.NoError(t, err)
	return Telemetry{
		X: p.X, Y: p.Y, S: s, D: d,
		Yaw:   geom.RadToDeg(geom.Heading(p, ahead)),
		Speed: speed,
	}
}

func withTail(t Telemetry, m *roadmap.Map, tail []geom.WorldPoint) Telemetry {
	t.PreviousPathX = make([]float64, len(tail))
	t.PreviousPathY = make([]float64, len(tail))
	for i, p := range tail {
		t.PreviousPathX[i] = p.X
		t.PreviousPathY[i] = p.Y
	}
	if len(tail) > 0 {
		end := m.ToFrenet(tail[len(tail)-1], geom.DegToRad(t.Yaw))
		t.EndPathS, t.EndPathD = end.S, end.D
	}
	return t
}

func cruising() behavior.State {
	return behavior.State{Lane: 1, ReferenceSpeed: 40}
}

func TestPlanCycleEndToEnd(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	tel := telemetryAt(t, m, 100, 1, 40)

	res, next, err := PlanCycle(m, DefaultConfig(), cruising(), tel)
	require.NoError(t, err)
	require.Len(t, res.Path, 50)
	assert.Equal(t, 0, res.Kept)
	assert.Equal(t, 1, next.Lane)
	assert.InDelta(t, 40.224, next.ReferenceSpeed, 1e-12)
	assert.False(t, res.Decision.TooClose)

	wantStep := next.ReferenceSpeed / 2.24 * 0.02
	prev := geom.WorldPoint{X: tel.X, Y: tel.Y}
	for i, p := range res.Path {
		assert.InDelta(t, wantStep, geom.Distance(prev, p), 0.01, "point %d", i)
		prev = p
	}

	// First point continues the heading of the point invented behind the car.
	heading := geom.DegToRad(tel.Yaw)
	behind := geom.WorldPoint{X: tel.X - math.Cos(heading), Y: tel.Y - math.Sin(heading)}
	got := geom.Heading(behind, res.Path[0])
	assert.InDelta(t, 0, math.Remainder(got-heading, 2*math.Pi), 0.01)

	for i, p := range res.Path {
		f := m.ToFrenet(p, heading)
		assert.InDelta(t, roadmap.LaneCenter(1), f.D, 0.1, "point %d", i)
	}
}

func TestPlanCycleKeepsTailAndLength(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	base := telemetryAt(t, m, 100, 1, 40)

	first, _, err := PlanCycle(m, DefaultConfig(), cruising(), base)
	require.NoError(t, err)

	for k := 0; k <= 50; k++ {
		tail := first.Path[50-k:]
		tel := withTail(base, m, tail)

		res, _, err := PlanCycle(m, DefaultConfig(), cruising(), tel)
		require.NoError(t, err, "k=%d", k)
		require.Len(t, res.Path, 50, "k=%d", k)
		assert.Equal(t, k, res.Kept)
		for i := 0; i < k; i++ {
			if res.Path[i] != tail[i] {
				t.Fatalf("k=%d: point %d = %v, want %v", k, i, res.Path[i], tail[i])
			}
		}
	}
}

func TestPlanCycleUsesEndOfPath(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	base := telemetryAt(t, m, 100, 1, 40)
	first, _, err := PlanCycle(m, DefaultConfig(), cruising(), base)
	require.NoError(t, err)

	tel := withTail(base, m, first.Path[40:])
	res, _, err := PlanCycle(m, DefaultConfig(), cruising(), tel)
	require.NoError(t, err)
	assert.Equal(t, tel.EndPathS, res.Ego.S)
	assert.Greater(t, res.Ego.S, 100.0)
}

func TestPlanCycleProjectsOtherCars(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	base := telemetryAt(t, m, 100, 1, 40)
	first, _, err := PlanCycle(m, DefaultConfig(), cruising(), base)
	require.NoError(t, err)

	// 15 ahead of the end of the path now, but the 10 pending points at
	// 50 units/s put it 25 ahead by then.
	tel := withTail(base, m, first.Path[40:])
	tel.SensorFusion = []vehicle.SensorReading{
		{ID: 7, VX: 30, VY: 40, S: tel.EndPathS + 15, D: roadmap.LaneCenter(1)},
	}
	res, _, err := PlanCycle(m, DefaultConfig(), cruising(), tel)
	require.NoError(t, err)
	require.Len(t, res.Vehicles, 1)
	assert.InDelta(t, tel.EndPathS+25, res.Vehicles[0].S, 1e-9)
	assert.False(t, res.Decision.TooClose)
}

func TestPlanCycleTooCloseChangesLane(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	tel := telemetryAt(t, m, 100, 1, 40)
	tel.SensorFusion = []vehicle.SensorReading{
		{ID: 3, VX: 0, VY: 0, S: 110, D: roadmap.LaneCenter(1)},
	}

	res, next, err := PlanCycle(m, DefaultConfig(), cruising(), tel)
	require.NoError(t, err)
	assert.True(t, res.Decision.TooClose)
	assert.Equal(t, 0, next.Lane)
	assert.InDelta(t, 40-0.324, next.ReferenceSpeed, 1e-12)

	// The new points bend toward lane 0.
	last := m.ToFrenet(res.Path[len(res.Path)-1], geom.DegToRad(tel.Yaw))
	assert.Less(t, last.D, roadmap.LaneCenter(1))
}

func TestPlanCycleMalformed(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	good := telemetryAt(t, m, 100, 1, 40)

	tests := []struct {
		name   string
		mutate func(*Telemetry)
	}{
		{"mismatched path", func(tel *Telemetry) {
			tel.PreviousPathX = []float64{1, 2}
			tel.PreviousPathY = []float64{1}
		}},
		{"nan pose", func(tel *Telemetry) { tel.X = math.NaN() }},
		{"inf yaw", func(tel *Telemetry) { tel.Yaw = math.Inf(1) }},
		{"nan path point", func(tel *Telemetry) {
			tel.PreviousPathX = []float64{1, math.NaN()}
			tel.PreviousPathY = []float64{1, 2}
		}},
		{"nan sensor", func(tel *Telemetry) {
			tel.SensorFusion = []vehicle.SensorReading{{ID: 1, S: math.NaN()}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tel := good
			tt.mutate(&tel)
			state := cruising()
			res, next, err := PlanCycle(m, DefaultConfig(), state, tel)
			assert.ErrorIs(t, err, ErrMalformedTelemetry)
			assert.Empty(t, res.Path)
			assert.Equal(t, state, next)
		})
	}
}

func TestPlanCycleTailTooLong(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	base := telemetryAt(t, m, 100, 1, 40)
	first, _, err := PlanCycle(m, DefaultConfig(), cruising(), base)
	require.NoError(t, err)

	tel := withTail(base, m, append(first.Path, first.Path[49]))
	_, next, err := PlanCycle(m, DefaultConfig(), cruising(), tel)
	require.Error(t, err)
	assert.Equal(t, cruising(), next)
}

func TestTelemetryEgo(t *testing.T) {
	t.Parallel()
	tel := Telemetry{X: 1, Y: 2, S: 3, D: 6, Yaw: 90, Speed: 20, EndPathS: 50}
	ego := tel.Ego()
	assert.InDelta(t, math.Pi/2, ego.Heading, 1e-12)
	assert.Equal(t, 3.0, ego.S)

	tel.PreviousPathX = []float64{4}
	tel.PreviousPathY = []float64{5}
	assert.Equal(t, 50.0, tel.Ego().S)
	assert.Equal(t, []geom.WorldPoint{{X: 4, Y: 5}}, tel.PreviousPath())
}

func TestResultNextXY(t *testing.T) {
	t.Parallel()
	res := Result{Path: []geom.WorldPoint{{X: 1, Y: 2}, {X: 3, Y: 4}}}
	xs, ys := res.NextXY()
	assert.Equal(t, []float64{1, 3}, xs)
	assert.Equal(t, []float64{2, 4}, ys)
}

func TestPlannerCarriesState(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	p := New(m, DefaultConfig(), behavior.InitialState())
	tel := telemetryAt(t, m, 100, 1, 0)

	_, ok := p.Last()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		res, err := p.Plan(tel)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), res.Cycle)
	}
	assert.Equal(t, uint64(3), p.Cycles())
	assert.InDelta(t, 3*0.224, p.State().ReferenceSpeed, 1e-12)
	assert.Equal(t, 1, p.State().Lane)

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.Cycle)

	// A malformed cycle is skipped.
	bad := tel
	bad.Speed = math.NaN()
	_, err := p.Plan(bad)
	assert.ErrorIs(t, err, ErrMalformedTelemetry)
	assert.Equal(t, uint64(3), p.Cycles())
	assert.InDelta(t, 3*0.224, p.State().ReferenceSpeed, 1e-12)
}

func TestPlannerSerializesCycles(t *testing.T) {
	t.Parallel()
	m := circleMap(t)
	p := New(m, DefaultConfig(), behavior.InitialState())
	tel := telemetryAt(t, m, 100, 1, 0)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Plan(tel)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(n), p.Cycles())
	assert.InDelta(t, n*0.224, p.State().ReferenceSpeed, 1e-9)
}

func TestPlannerLogsLaneChange(t *testing.T) {
	var ops, diag bytes.Buffer
	monitoring.SetLogWriters(monitoring.LogWriters{Ops: &ops, Diag: &diag})
	t.Cleanup(func() { monitoring.SetLogWriters(monitoring.LogWriters{}) })

	m := circleMap(t)
	p := New(m, DefaultConfig(), cruising())
	tel := telemetryAt(t, m, 100, 1, 40)
	tel.SensorFusion = []vehicle.SensorReading{{ID: 3, S: 110, D: roadmap.LaneCenter(1)}}

	_, err := p.Plan(tel)
	require.NoError(t, err)
	assert.Contains(t, ops.String(), "change to lane 0")
	assert.Contains(t, diag.String(), "cycle 1: lane=0")
}

func TestConfigFromTuning(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultConfig(), ConfigFromTuning(config.EmptyPlannerConfig()))

	lane := 2
	assert.Equal(t, behavior.State{Lane: 2}, InitialStateFromTuning(&config.PlannerConfig{StartLane: &lane}))
	assert.Equal(t, behavior.InitialState(), InitialStateFromTuning(config.EmptyPlannerConfig()))
}
