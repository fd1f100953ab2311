package platform

import (
	"fmt"

	"kcbalance/internal/evo"
)

func SelectorFromName(name string, tournamentSize int) (evo.Selector, error) {
	selector, err := evo.ResolveSelector(name, evo.SelectorOptions{TournamentSize: tournamentSize})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", evo.ErrInvalidConfig, err)
	}
	return selector, nil
}

func CrossoverFromName(name string) (evo.Crossover, error) {
	crossover, err := evo.ResolveCrossover(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", evo.ErrInvalidConfig, err)
	}
	return crossover, nil
}
