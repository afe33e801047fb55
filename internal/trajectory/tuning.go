package trajectory

import "github.com/banshee-data/highway-planner/internal/config"

// ConfigFromTuning builds a Config from the loaded planner configuration.
func ConfigFromTuning(cfg *config.PlannerConfig) Config {
	return Config{
		PathLength:    cfg.GetPathLength(),
		CycleDuration: cfg.GetCycleDuration(),
		AnchorSpacing: cfg.GetAnchorSpacing(),
		AnchorCount:   cfg.GetAnchorCount(),
		LookaheadX:    cfg.GetLookaheadX(),
		SpeedFactor:   cfg.GetSpeedFactor(),
	}
}
