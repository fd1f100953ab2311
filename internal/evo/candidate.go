package evo

import (
	"math/rand"

	"kcbalance/internal/model"
)

type ScoredCandidate struct {
	Candidate model.Candidate
	Result    model.FitnessResult
}

// NewRandomCandidate draws the goal and then each KC weight uniformly from the
// metric's ranges. kcs fixes both the key set and the draw order.
func NewRandomCandidate(rng *rand.Rand, metric model.Metric, kcs []string, ranges model.MetricRanges) model.Candidate {
	candidate := model.Candidate{
		Metric:  metric,
		Goal:    uniform(rng, ranges.Goal),
		Weights: make(map[string]float64, len(kcs)),
	}
	for _, kc := range kcs {
		candidate.Weights[kc] = uniform(rng, ranges.Weight)
	}
	return candidate
}

func WithinBounds(candidate model.Candidate, ranges model.MetricRanges) bool {
	if !ranges.Goal.Contains(candidate.Goal) {
		return false
	}
	for _, w := range candidate.Weights {
		if !ranges.Weight.Contains(w) {
			return false
		}
	}
	return true
}

func uniform(rng *rand.Rand, r model.Range) float64 {
	return r.Min + rng.Float64()*r.Width()
}
