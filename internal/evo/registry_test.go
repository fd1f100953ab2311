package evo

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"kcbalance/internal/model"
)

type firstTwoSelector struct{}

func (firstTwoSelector) Name() string { return "first_two" }

func (firstTwoSelector) PickParents(_ *rand.Rand, pool []ScoredCandidate) (model.Candidate, model.Candidate, error) {
	return pool[0].Candidate, pool[1].Candidate, nil
}

func TestResolveBuiltInOperators(t *testing.T) {
	t.Cleanup(resetOperatorRegistry)

	selector, err := ResolveSelector("", SelectorOptions{})
	if err != nil {
		t.Fatalf("resolve default selector: %v", err)
	}
	if _, ok := selector.(UniformPairSelector); !ok {
		t.Fatalf("expected uniform pair default, got %T", selector)
	}

	selector, err = ResolveSelector("tournament", SelectorOptions{})
	if err != nil {
		t.Fatalf("resolve tournament: %v", err)
	}
	if got := selector.(TournamentSelector).TournamentSize; got != DefaultTournamentSize {
		t.Fatalf("expected default tournament size, got %d", got)
	}
	selector, err = ResolveSelector("tournament", SelectorOptions{TournamentSize: 5})
	if err != nil {
		t.Fatalf("resolve sized tournament: %v", err)
	}
	if got := selector.(TournamentSelector).TournamentSize; got != 5 {
		t.Fatalf("expected tournament size 5, got %d", got)
	}

	crossover, err := ResolveCrossover("")
	if err != nil {
		t.Fatalf("resolve default crossover: %v", err)
	}
	if crossover.Name() != "arithmetic" {
		t.Fatalf("expected arithmetic default, got %s", crossover.Name())
	}
	if !reflect.DeepEqual(ListCrossovers(), []string{"arithmetic", "uniform"}) {
		t.Fatalf("unexpected crossovers: %v", ListCrossovers())
	}
	if !reflect.DeepEqual(ListSelectors(), []string{"tournament", "uniform_pair"}) {
		t.Fatalf("unexpected selectors: %v", ListSelectors())
	}
}

func TestRegisterSelector(t *testing.T) {
	t.Cleanup(resetOperatorRegistry)

	if err := RegisterSelector("first_two", func(SelectorOptions) Selector { return firstTwoSelector{} }); err != nil {
		t.Fatalf("register: %v", err)
	}
	selector, err := ResolveSelector("first_two", SelectorOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	a, b, err := selector.PickParents(nil, scoredPool(0.1, 0.2, 0.3))
	if err != nil || a.ID != "a" || b.ID != "b" {
		t.Fatalf("unexpected parents %s %s err=%v", a.ID, b.ID, err)
	}
	if err := RegisterSelector("first_two", func(SelectorOptions) Selector { return firstTwoSelector{} }); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
}

func TestRegisterOperatorValidation(t *testing.T) {
	t.Cleanup(resetOperatorRegistry)

	if err := RegisterSelector("", func(SelectorOptions) Selector { return firstTwoSelector{} }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterSelector("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if err := RegisterCrossover("", UniformCrossover{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterCrossover("nil", nil); err == nil {
		t.Fatal("expected nil crossover error")
	}
	if err := RegisterCrossover("uniform", UniformCrossover{}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
}

func TestResolveUnknownOperator(t *testing.T) {
	if _, err := ResolveSelector("roulette", SelectorOptions{}); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
	if _, err := ResolveCrossover("blend"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
}
