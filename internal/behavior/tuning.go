package behavior

import "github.com/banshee-data/highway-planner/internal/config"

// ConfigFromTuning builds a Config from the loaded planner configuration.
func ConfigFromTuning(cfg *config.PlannerConfig) Config {
	return Config{
		SameLaneHalfWidth: cfg.GetSameLaneHalfWidth(),
		AdjacentLaneLimit: cfg.GetAdjacentLaneLimit(),
		TooCloseGap:       cfg.GetTooCloseGap(),
		RiskBehind:        cfg.GetRiskBehind(),
		RiskAhead:         cfg.GetRiskAhead(),
		SpeedLimit:        cfg.GetSpeedLimit(),
		SpeedIncrement:    cfg.GetSpeedIncrement(),
		SpeedDecrement:    cfg.GetSpeedDecrement(),
	}
}
