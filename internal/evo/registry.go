package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultTournamentSize is used when a tournament selector is requested
// without an explicit size.
const DefaultTournamentSize = 3

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// SelectorOptions parameterizes selector construction by name.
type SelectorOptions struct {
	TournamentSize int
}

type SelectorFactory func(SelectorOptions) Selector

var operatorRegistry = struct {
	mu         sync.RWMutex
	selectors  map[string]SelectorFactory
	crossovers map[string]Crossover
}{}

func init() {
	resetOperatorRegistry()
}

func resetOperatorRegistry() {
	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()
	operatorRegistry.selectors = map[string]SelectorFactory{
		UniformPairSelector{}.Name(): func(SelectorOptions) Selector {
			return UniformPairSelector{}
		},
		TournamentSelector{}.Name(): func(opts SelectorOptions) Selector {
			size := opts.TournamentSize
			if size <= 0 {
				size = DefaultTournamentSize
			}
			return TournamentSelector{TournamentSize: size}
		},
	}
	operatorRegistry.crossovers = map[string]Crossover{
		ArithmeticCrossover{}.Name(): ArithmeticCrossover{},
		UniformCrossover{}.Name():    UniformCrossover{},
	}
}

func RegisterSelector(name string, factory SelectorFactory) error {
	if name == "" {
		return errors.New("selector name is required")
	}
	if factory == nil {
		return errors.New("selector factory is required")
	}
	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()
	if _, exists := operatorRegistry.selectors[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	operatorRegistry.selectors[name] = factory
	return nil
}

func RegisterCrossover(name string, crossover Crossover) error {
	if name == "" {
		return errors.New("crossover name is required")
	}
	if crossover == nil {
		return errors.New("crossover is required")
	}
	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()
	if _, exists := operatorRegistry.crossovers[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	operatorRegistry.crossovers[name] = crossover
	return nil
}

// ResolveSelector builds the named selector. An empty name is the default
// uniform pair selector.
func ResolveSelector(name string, opts SelectorOptions) (Selector, error) {
	if name == "" {
		name = UniformPairSelector{}.Name()
	}
	operatorRegistry.mu.RLock()
	factory, ok := operatorRegistry.selectors[name]
	operatorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: selector %s", ErrOperatorNotFound, name)
	}
	return factory(opts), nil
}

func ResolveCrossover(name string) (Crossover, error) {
	if name == "" {
		name = ArithmeticCrossover{}.Name()
	}
	operatorRegistry.mu.RLock()
	crossover, ok := operatorRegistry.crossovers[name]
	operatorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: crossover %s", ErrOperatorNotFound, name)
	}
	return crossover, nil
}

func ListSelectors() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()
	return sortedKeys(operatorRegistry.selectors)
}

func ListCrossovers() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()
	return sortedKeys(operatorRegistry.crossovers)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
