package api

import (
	"github.com/banshee-data/highway-planner/internal/monitoring"
)

// testLogger swaps monitoring.Logf and returns the previous logger.
func testLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	prev := monitoring.Logf
	monitoring.SetLogger(f)
	return prev
}
