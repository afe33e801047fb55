// Command trajplot renders recorded planner trajectories to PNG.
//
// Cycles come from the planner database (-db) or from a running planner's
// API (-api). Every stride-th trajectory is drawn in the color of the lane
// it was planned for.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/highway-planner/internal/db"
	"github.com/banshee-data/highway-planner/internal/httputil"
)

var (
	dbPath   = flag.String("db", "planner.db", "Planner database to read")
	apiURL   = flag.String("api", "", "Planner API base URL, e.g. http://localhost:8080 (overrides -db)")
	session  = flag.String("session", "", "Session to plot (default: most recent; ignored with -api)")
	limit    = flag.Int("limit", 1000, "Maximum number of cycles to read")
	stride   = flag.Int("stride", 25, "Draw every n-th trajectory")
	out      = flag.String("out", "trajectories.png", "Output PNG for the trajectories")
	speedOut = flag.String("speed-out", "", "Output PNG for reference speed per cycle (empty to skip)")
)

var laneColors = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

func laneColor(lane int) color.Color {
	if lane < 0 || lane >= len(laneColors) {
		return color.Black
	}
	return laneColors[lane]
}

// loadFromDB returns the cycles of sessionID, or of the most recently
// active session when sessionID is empty.
func loadFromDB(path, sessionID string, limit int) ([]db.CycleRecord, string, error) {
	store, err := db.NewDB(path)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	if sessionID == "" {
		sessions, err := store.Sessions()
		if err != nil {
			return nil, "", err
		}
		if len(sessions) == 0 {
			return nil, "", errors.New("no recorded sessions")
		}
		sessionID = sessions[0].SessionID
	}
	cycles, err := store.SessionCycles(sessionID, limit)
	return cycles, sessionID, err
}

// loadFromAPI returns recent cycles from a running planner in cycle order.
func loadFromAPI(ctx context.Context, client httputil.HTTPClient, base string, limit int) ([]db.CycleRecord, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	u = u.JoinPath("api", "cycles")
	u.RawQuery = url.Values{"limit": {strconv.Itoa(limit)}, "units": {"mph"}}.Encode()

	var cycles []db.CycleRecord
	if err := httputil.GetJSON(ctx, client, u.String(), &cycles); err != nil {
		return nil, err
	}
	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].SessionID != cycles[j].SessionID {
			return cycles[i].CreatedAt.Before(cycles[j].CreatedAt)
		}
		return cycles[i].Cycle < cycles[j].Cycle
	})
	return cycles, nil
}

// plotTrajectories draws every stride-th trajectory, plus any cycle that
// changed lane.
func plotTrajectories(cycles []db.CycleRecord, stride int, title string) (*plot.Plot, error) {
	if stride < 1 {
		stride = 1
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	legend := map[int]bool{}
	for i, c := range cycles {
		if i%stride != 0 && c.Lane == c.PreviousLane {
			continue
		}
		if len(c.Trajectory) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(c.Trajectory))
		for j, wp := range c.Trajectory {
			pts[j] = plotter.XY{X: wp.X, Y: wp.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", c.Cycle, err)
		}
		line.Width = vg.Points(1)
		line.Color = laneColor(c.Lane)
		p.Add(line)
		if !legend[c.Lane] {
			p.Legend.Add(fmt.Sprintf("lane %d", c.Lane), line)
			legend[c.Lane] = true
		}
	}
	return p, nil
}

// plotSpeed draws reference speed against cycle number.
func plotSpeed(cycles []db.CycleRecord, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Cycle"
	p.Y.Label.Text = "Reference speed (mph)"

	pts := make(plotter.XYs, len(cycles))
	for i, c := range cycles {
		pts[i] = plotter.XY{X: float64(c.Cycle), Y: c.ReferenceSpeed}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

func main() {
	flag.Parse()

	var (
		cycles []db.CycleRecord
		label  string
		err    error
	)
	if *apiURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cycles, err = loadFromAPI(ctx, http.DefaultClient, *apiURL, *limit)
		label = *apiURL
	} else {
		cycles, label, err = loadFromDB(*dbPath, *session, *limit)
	}
	if err != nil {
		log.Fatalf("failed to load cycles: %v", err)
	}
	if len(cycles) == 0 {
		log.Fatal("no cycles to plot")
	}

	p, err := plotTrajectories(cycles, *stride, fmt.Sprintf("Trajectories - %s (%d cycles)", label, len(cycles)))
	if err != nil {
		log.Fatalf("failed to plot trajectories: %v", err)
	}
	if err := p.Save(10*vg.Inch, 10*vg.Inch, *out); err != nil {
		log.Fatalf("failed to save %s: %v", *out, err)
	}
	log.Printf("wrote %s", *out)

	if *speedOut != "" {
		sp, err := plotSpeed(cycles, fmt.Sprintf("Reference speed - %s", label))
		if err != nil {
			log.Fatalf("failed to plot speed: %v", err)
		}
		if err := sp.Save(14*vg.Inch, 6*vg.Inch, *speedOut); err != nil {
			log.Fatalf("failed to save %s: %v", *speedOut, err)
		}
		log.Printf("wrote %s", *speedOut)
	}
}
