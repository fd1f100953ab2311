package evo

import (
	"fmt"
	"math/rand"

	"kcbalance/internal/model"
)

// Selector chooses two distinct parents from the ranked parent pool.
type Selector interface {
	Name() string
	PickParents(rng *rand.Rand, pool []ScoredCandidate) (model.Candidate, model.Candidate, error)
}

// UniformPairSelector samples two parents uniformly without replacement.
type UniformPairSelector struct{}

func (UniformPairSelector) Name() string {
	return "uniform_pair"
}

func (UniformPairSelector) PickParents(rng *rand.Rand, pool []ScoredCandidate) (model.Candidate, model.Candidate, error) {
	if rng == nil {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("random source is required")
	}
	if len(pool) < 2 {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: parent pool has %d candidates, need 2", ErrInvalidConfig, len(pool))
	}
	i := rng.Intn(len(pool))
	j := rng.Intn(len(pool) - 1)
	if j >= i {
		j++
	}
	return pool[i].Candidate, pool[j].Candidate, nil
}

// TournamentSelector runs two tournaments over the pool; the second excludes
// the first winner so parents stay distinct.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParents(rng *rand.Rand, pool []ScoredCandidate) (model.Candidate, model.Candidate, error) {
	if rng == nil {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("random source is required")
	}
	if len(pool) < 2 {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: parent pool has %d candidates, need 2", ErrInvalidConfig, len(pool))
	}
	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}

	first := s.tournament(rng, pool, size, -1)
	second := s.tournament(rng, pool, size, first)
	return pool[first].Candidate, pool[second].Candidate, nil
}

func (s TournamentSelector) tournament(rng *rand.Rand, pool []ScoredCandidate, size, exclude int) int {
	draw := func() int {
		if exclude < 0 {
			return rng.Intn(len(pool))
		}
		idx := rng.Intn(len(pool) - 1)
		if idx >= exclude {
			idx++
		}
		return idx
	}
	best := draw()
	for i := 1; i < size; i++ {
		candidate := draw()
		if pool[candidate].Result.Error < pool[best].Result.Error {
			best = candidate
		}
	}
	return best
}
