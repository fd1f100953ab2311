package fitness

import (
	"kcbalance/internal/model"
)

// EarlyPenalty scales the chapter-1 deviation before squaring so candidates that
// let players win too early are punished hardest.
const EarlyPenalty = 5.0

// Targets are the desired cumulative win fractions per chapter.
type Targets [model.Chapters]float64

var DefaultTargets = Targets{0.0, 0.65, 0.85}

// Evaluator scores candidates against a journey set bound at construction.
type Evaluator interface {
	Name() string
	Evaluate(candidate model.Candidate) model.FitnessResult
}

// Direct walks every journey snapshot for every evaluation.
type Direct struct {
	journeys []model.Journey
	targets  Targets
}

func NewDirect(journeys []model.Journey, targets Targets) *Direct {
	return &Direct{journeys: journeys, targets: targets}
}

func (*Direct) Name() string {
	return "direct"
}

func (d *Direct) Evaluate(candidate model.Candidate) model.FitnessResult {
	kcs := candidate.SortedKCs()
	var wins [model.Chapters]int
	for _, journey := range d.journeys {
		for c := 0; c < model.Chapters && c < len(journey); c++ {
			if score(kcs, candidate.Weights, journey[c]) >= candidate.Goal {
				wins[c]++
			}
		}
	}
	return resultFor(wins, len(d.journeys), d.targets)
}

// Score is the metric value of one chapter snapshot under candidate's weights.
// KCs absent from either side contribute nothing.
func Score(candidate model.Candidate, snapshot model.KCTotals) float64 {
	return score(candidate.SortedKCs(), candidate.Weights, snapshot)
}

func score(sortedKCs []string, weights map[string]float64, snapshot model.KCTotals) float64 {
	total := 0.0
	for _, kc := range sortedKCs {
		v, ok := snapshot[kc]
		if !ok {
			continue
		}
		total += v * weights[kc]
	}
	return total
}

// ErrorFor is the weighted squared deviation of win fractions from targets.
func ErrorFor(win [model.Chapters]float64, targets Targets) float64 {
	total := 0.0
	for c := 0; c < model.Chapters; c++ {
		delta := win[c] - targets[c]
		if c == 0 {
			delta *= EarlyPenalty
		}
		total += delta * delta
	}
	return total
}

func resultFor(wins [model.Chapters]int, players int, targets Targets) model.FitnessResult {
	var out model.FitnessResult
	if players > 0 {
		for c := range wins {
			out.WinFractions[c] = float64(wins[c]) / float64(players)
		}
	}
	out.Error = ErrorFor(out.WinFractions, targets)
	return out
}
