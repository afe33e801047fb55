package simserver

import (
	"context"
	"time"

	"github.com/banshee-data/highway-planner/internal/monitoring"
	"github.com/banshee-data/highway-planner/internal/timeutil"
)

// CycleCounter reports completed planning cycles.
type CycleCounter interface {
	Cycles() uint64
}

// ReportStats logs the planning rate on the diag stream every interval
// until ctx is done.
func ReportStats(ctx context.Context, clock timeutil.Clock, interval time.Duration, counter CycleCounter) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	last := counter.Cycles()
	lastAt := clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			cycles := counter.Cycles()
			elapsed := now.Sub(lastAt).Seconds()
			if elapsed > 0 {
				monitoring.Diagf("planner: %d cycles total, %.1f cycles/s", cycles, float64(cycles-last)/elapsed)
			}
			last, lastAt = cycles, now
		}
	}
}
