package health

import "sdwan-overlay/internal/model"

// Health score weights. Fixed defaults, not configurable per
// deployment; the routing engine reuses the same blend for policies
// without an explicit preference.
const (
	WeightLatency     = 0.3
	WeightJitter      = 0.2
	WeightLoss        = 0.3
	WeightUtilization = 0.2
)

// Status thresholds on the composite score
const (
	UpThreshold   = 80.0
	DownThreshold = 20.0
)

// subScore maps a metric to a 0-100 sub-score: 100 at zero, dropping
// linearly to 0 at value 100 and clamped from there.
func subScore(value float64) float64 {
	s := 100 - value
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Score computes the composite 0-100 health score from path metrics.
// Each sub-score is clamped to [0,100] before weighting, so the blend
// is monotonically non-increasing in every input.
func Score(latencyMs, jitterMs, lossPct, utilizationPct float64) float64 {
	return subScore(latencyMs)*WeightLatency +
		subScore(jitterMs)*WeightJitter +
		subScore(lossPct)*WeightLoss +
		subScore(utilizationPct)*WeightUtilization
}

// StatusForScore classifies a score: >=80 Up, >=20 Degraded, else Down
func StatusForScore(score float64) model.PathStatus {
	switch {
	case score >= UpThreshold:
		return model.StatusUp
	case score >= DownThreshold:
		return model.StatusDegraded
	default:
		return model.StatusDown
	}
}
