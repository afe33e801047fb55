package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/highway-planner/internal/geom"
	"github.com/banshee-data/highway-planner/internal/httputil"
	"github.com/banshee-data/highway-planner/internal/roadmap"
)

// Waypoints shown around the trajectory: a few behind its start and enough
// ahead to cover the far anchors.
const (
	chartWaypointsBehind = 3
	chartWaypointsAhead  = 5
)

// bounds tracks a square plot window around every point added.
type bounds struct {
	minX, maxX, minY, maxY float64
}

func newBounds() bounds {
	return bounds{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
}

func (b *bounds) add(p geom.WorldPoint) {
	b.minX = math.Min(b.minX, p.X)
	b.maxX = math.Max(b.maxX, p.X)
	b.minY = math.Min(b.minY, p.Y)
	b.maxY = math.Max(b.maxY, p.Y)
}

// square returns equal-width x and y ranges so the road is not distorted.
func (b bounds) square() (minX, maxX, minY, maxY float64) {
	half := math.Max(b.maxX-b.minX, b.maxY-b.minY)/2*1.1 + 1
	cx, cy := (b.minX+b.maxX)/2, (b.minY+b.maxY)/2
	return cx - half, cx + half, cy - half, cy + half
}

func scatterPoints(pts []geom.WorldPoint, b *bounds) []opts.ScatterData {
	out := make([]opts.ScatterData, 0, len(pts))
	for _, p := range pts {
		b.add(p)
		out = append(out, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}
	return out
}

// nearbyRoad returns the map waypoints around p and the lane centers at
// the same s values.
func nearbyRoad(road *roadmap.Map, p geom.WorldPoint) (edge []geom.WorldPoint, lanes [roadmap.LaneCount][]geom.WorldPoint) {
	closest := road.ClosestWaypoint(p)
	for i := closest - chartWaypointsBehind; i <= closest+chartWaypointsAhead; i++ {
		wp := road.Waypoint(i)
		edge = append(edge, wp.Position)
		for lane := 0; lane < roadmap.LaneCount; lane++ {
			c, err := road.ToCartesian(geom.FrenetPoint{S: wp.S, D: roadmap.LaneCenter(lane)})
			if err != nil {
				continue
			}
			lanes[lane] = append(lanes[lane], c)
		}
	}
	return edge, lanes
}

// pathEnd returns the Frenet position of the last point of path, heading
// along its final segment.
func pathEnd(road *roadmap.Map, path []geom.WorldPoint) geom.FrenetPoint {
	last := path[len(path)-1]
	heading := 0.0
	if n := len(path); n >= 2 {
		heading = geom.Heading(path[n-2], last)
	}
	return road.ToFrenet(last, heading)
}

// handleTrajectoryChart renders the last planned trajectory over the road
// around it.
func (s *Server) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	res, ok := s.planner.Last()
	if !ok || len(res.Path) == 0 {
		httputil.NotFound(w, "no trajectory planned yet")
		return
	}

	b := newBounds()
	edge, lanes := nearbyRoad(s.planner.Road(), res.Path[0])
	kept := scatterPoints(res.Path[:res.Kept], &b)
	planned := scatterPoints(res.Path[res.Kept:], &b)
	edgePts := scatterPoints(edge, &b)
	var lanePts [roadmap.LaneCount][]opts.ScatterData
	for lane, pts := range lanes {
		lanePts[lane] = scatterPoints(pts, &b)
	}
	minX, maxX, minY, maxY := b.square()
	end := pathEnd(s.planner.Road(), res.Path)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Planned trajectory", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Planned trajectory",
			Subtitle: fmt.Sprintf("cycle=%d lane=%d speed=%.2f kept=%d new=%d end s=%.1f d=%.2f",
				res.Cycle, res.Decision.Lane, res.Decision.ReferenceSpeed, res.Kept, len(res.Path)-res.Kept,
				end.S, end.D),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "y", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("road edge", edgePts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	for lane, pts := range lanePts {
		scatter.AddSeries(fmt.Sprintf("lane %d", lane), pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	scatter.AddSeries("previous path", kept, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	scatter.AddSeries("new points", planned, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render trajectory chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
