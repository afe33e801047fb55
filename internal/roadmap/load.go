package roadmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/highway-planner/internal/geom"
)

// maxMapFileSize caps the waypoint file read at startup.
const maxMapFileSize = 4 * 1024 * 1024

// Parse reads waypoint records, one per line, each holding five numbers:
// x y s dx dy. Fields may be separated by whitespace or commas. Blank lines
// and lines starting with '#' are skipped.
func Parse(r io.Reader) ([]Waypoint, error) {
	var waypoints []Waypoint
	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields (x y s dx dy), got %d", lineNo, len(fields))
		}
		var v [5]float64
		for i, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d field %d: %w", lineNo, i+1, err)
			}
			v[i] = n
		}
		waypoints = append(waypoints, Waypoint{
			Position: geom.WorldPoint{X: v[0], Y: v[1]},
			S:        v[2],
			Normal:   Normal{DX: v[3], DY: v[4]},
		})
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waypoints: %w", err)
	}
	return waypoints, nil
}

// Load reads and validates the waypoint file at path.
func Load(path string, trackLength float64) (*Map, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat map file: %w", err)
	}
	if info.Size() > maxMapFileSize {
		return nil, fmt.Errorf("map file too large: %d bytes (max %d)", info.Size(), maxMapFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open map file: %w", err)
	}
	defer f.Close()

	waypoints, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse map %s: %w", cleanPath, err)
	}
	m, err := New(waypoints, trackLength)
	if err != nil {
		return nil, fmt.Errorf("invalid map %s: %w", cleanPath, err)
	}
	return m, nil
}
