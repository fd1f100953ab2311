package evo

import (
	"math/rand"
	"sort"

	"kcbalance/internal/model"
)

// Crossover combines two parents into a fresh child that shares no storage
// with either parent.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, a, b model.Candidate) model.Candidate
}

// Mutator perturbs a candidate in place and keeps every gene inside ranges.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, candidate *model.Candidate, ranges model.MetricRanges)
}

// ArithmeticCrossover averages the goal and every weight. A weight present in
// only one parent is inherited as is.
type ArithmeticCrossover struct{}

func (ArithmeticCrossover) Name() string {
	return "arithmetic"
}

func (ArithmeticCrossover) Cross(_ *rand.Rand, a, b model.Candidate) model.Candidate {
	child := model.Candidate{
		Metric:  a.Metric,
		Goal:    (a.Goal + b.Goal) / 2.0,
		Weights: make(map[string]float64, len(a.Weights)),
	}
	for kc, wa := range a.Weights {
		if wb, ok := b.Weights[kc]; ok {
			child.Weights[kc] = (wa + wb) / 2.0
		} else {
			child.Weights[kc] = wa
		}
	}
	for kc, wb := range b.Weights {
		if _, ok := a.Weights[kc]; !ok {
			child.Weights[kc] = wb
		}
	}
	return child
}

// UniformCrossover takes each gene from either parent with equal odds.
type UniformCrossover struct{}

func (UniformCrossover) Name() string {
	return "uniform"
}

func (UniformCrossover) Cross(rng *rand.Rand, a, b model.Candidate) model.Candidate {
	child := model.Candidate{
		Metric:  a.Metric,
		Goal:    a.Goal,
		Weights: make(map[string]float64, len(a.Weights)),
	}
	if rng.Float64() < 0.5 {
		child.Goal = b.Goal
	}
	for _, kc := range unionKCs(a, b) {
		wa, okA := a.Weights[kc]
		wb, okB := b.Weights[kc]
		switch {
		case okA && okB:
			if rng.Float64() < 0.5 {
				child.Weights[kc] = wa
			} else {
				child.Weights[kc] = wb
			}
		case okA:
			child.Weights[kc] = wa
		default:
			child.Weights[kc] = wb
		}
	}
	return child
}

func unionKCs(a, b model.Candidate) []string {
	keys := make([]string, 0, len(a.Weights))
	for kc := range a.Weights {
		keys = append(keys, kc)
	}
	for kc := range b.Weights {
		if _, ok := a.Weights[kc]; !ok {
			keys = append(keys, kc)
		}
	}
	sort.Strings(keys)
	return keys
}

// UniformPerturbMutator adds U(-Strength, +Strength) scaled by the gene's range
// width to each gene with probability Rate, then clamps.
type UniformPerturbMutator struct {
	Rate     float64
	Strength float64
}

func (UniformPerturbMutator) Name() string {
	return "uniform_perturb"
}

func (m UniformPerturbMutator) Mutate(rng *rand.Rand, candidate *model.Candidate, ranges model.MetricRanges) {
	if rng.Float64() < m.Rate {
		candidate.Goal = ranges.Goal.Clamp(candidate.Goal + m.tweak(rng, ranges.Goal))
	}
	for _, kc := range candidate.SortedKCs() {
		if rng.Float64() < m.Rate {
			candidate.Weights[kc] = ranges.Weight.Clamp(candidate.Weights[kc] + m.tweak(rng, ranges.Weight))
		}
	}
}

func (m UniformPerturbMutator) tweak(rng *rand.Rand, r model.Range) float64 {
	return (rng.Float64()*2 - 1) * m.Strength * r.Width()
}
