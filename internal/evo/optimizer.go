package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"kcbalance/internal/fitness"
	"kcbalance/internal/model"
)

var ErrInvalidConfig = errors.New("invalid optimizer config")

const (
	DefaultPopulationSize   = 100
	DefaultGenerations      = 50
	DefaultMutationRate     = 0.1
	DefaultMutationStrength = 0.2
	DefaultEliteCount       = 5
)

// Observer receives the diagnostics of each finished generation.
type Observer func(model.GenerationDiagnostics)

type Config struct {
	Metric model.Metric
	Ranges model.MetricRanges
	// KCs is the exact weight key set of every candidate, in draw order.
	KCs []string

	// Journeys and Targets build a Direct evaluator when Evaluator is nil.
	Journeys  []model.Journey
	Targets   fitness.Targets
	Evaluator fitness.Evaluator

	PopulationSize   int
	Generations      int
	MutationRate     float64
	MutationStrength float64
	EliteCount       int
	Workers          int
	RecordLineage    bool

	Selector  Selector
	Crossover Crossover
	Mutator   Mutator
	Observer  Observer
	Logger    *zap.Logger
}

type RunResult struct {
	Metric       model.Metric
	Best         model.Candidate
	BestError    float64
	WinFractions [model.Chapters]float64
	// BestByGeneration is the best-ever error after each generation.
	BestByGeneration []float64
	// GenerationBest is the best error inside each generation's population.
	GenerationBest []float64
	Diagnostics    []model.GenerationDiagnostics
	Lineage        []model.LineageRecord
	Evaluations    int
}

// Optimizer evolves goal and weight candidates for a single metric.
type Optimizer struct {
	cfg Config
}

func NewOptimizer(cfg Config) (*Optimizer, error) {
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("%w: elite count must be in [0, population size]", ErrInvalidConfig)
	}
	if cfg.PopulationSize/2 < 2 {
		return nil, fmt.Errorf("%w: population size %d leaves a parent pool below 2", ErrInvalidConfig, cfg.PopulationSize)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("%w: mutation rate must be in [0, 1]", ErrInvalidConfig)
	}
	if cfg.MutationStrength < 0 {
		return nil, fmt.Errorf("%w: mutation strength must be >= 0", ErrInvalidConfig)
	}
	if cfg.Ranges.Weight.Min > cfg.Ranges.Weight.Max {
		return nil, fmt.Errorf("%w: weight range min > max for %s", ErrInvalidConfig, cfg.Metric)
	}
	if cfg.Ranges.Goal.Min > cfg.Ranges.Goal.Max {
		return nil, fmt.Errorf("%w: goal range min > max for %s", ErrInvalidConfig, cfg.Metric)
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = fitness.NewDirect(cfg.Journeys, cfg.Targets)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = UniformPairSelector{}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = ArithmeticCrossover{}
	}
	if cfg.Mutator == nil {
		cfg.Mutator = UniformPerturbMutator{Rate: cfg.MutationRate, Strength: cfg.MutationStrength}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.KCs = append([]string(nil), cfg.KCs...)
	return &Optimizer{cfg: cfg}, nil
}

func (o *Optimizer) Run(ctx context.Context, rng *rand.Rand) (RunResult, error) {
	if rng == nil {
		return RunResult{}, fmt.Errorf("random source is required")
	}
	cfg := o.cfg
	log := cfg.Logger.With(zap.String("metric", string(cfg.Metric)))

	population := make([]model.Candidate, 0, cfg.PopulationSize)
	for i := 0; i < cfg.PopulationSize; i++ {
		candidate := NewRandomCandidate(rng, cfg.Metric, cfg.KCs, cfg.Ranges)
		candidate.ID = fmt.Sprintf("%s-g0-i%d", cfg.Metric, i)
		population = append(population, candidate)
	}

	result := RunResult{
		Metric:           cfg.Metric,
		BestError:        math.Inf(1),
		BestByGeneration: make([]float64, 0, cfg.Generations),
		GenerationBest:   make([]float64, 0, cfg.Generations),
		Diagnostics:      make([]model.GenerationDiagnostics, 0, cfg.Generations),
	}
	if cfg.RecordLineage {
		result.Lineage = make([]model.LineageRecord, 0, cfg.PopulationSize*(cfg.Generations+1))
		for _, candidate := range population {
			result.Lineage = append(result.Lineage, lineageRecord(candidate, nil, 0, "seed"))
		}
	}
	var bestOverall model.Candidate
	hits, misses := cacheStats(cfg.Evaluator)

	for gen := 0; gen < cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		ranked, err := o.evaluatePopulation(ctx, population)
		if err != nil {
			return RunResult{}, err
		}
		result.Evaluations += len(ranked)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Result.Error < ranked[j].Result.Error
		})

		improved := false
		if ranked[0].Result.Error < result.BestError {
			result.BestError = ranked[0].Result.Error
			bestOverall = ranked[0].Candidate.Clone()
			improved = true
		}
		result.BestByGeneration = append(result.BestByGeneration, result.BestError)
		result.GenerationBest = append(result.GenerationBest, ranked[0].Result.Error)

		diag := summarizeGeneration(cfg.Metric, gen+1, ranked, result.BestError, improved)
		nextHits, nextMisses := cacheStats(cfg.Evaluator)
		if lookups := (nextHits - hits) + (nextMisses - misses); lookups > 0 {
			diag.CacheHitRate = float64(nextHits-hits) / float64(lookups)
		}
		hits, misses = nextHits, nextMisses
		result.Diagnostics = append(result.Diagnostics, diag)
		if cfg.Observer != nil {
			cfg.Observer(diag)
		}
		log.Debug("generation complete",
			zap.Int("generation", gen+1),
			zap.Float64("best_error", diag.BestError),
			zap.Float64("mean_error", diag.MeanError),
			zap.Float64("best_overall_error", result.BestError),
		)

		if gen == cfg.Generations-1 {
			break
		}
		var lineage []model.LineageRecord
		population, lineage, err = o.nextGeneration(rng, ranked, gen)
		if err != nil {
			return RunResult{}, err
		}
		result.Lineage = append(result.Lineage, lineage...)
	}

	final := cfg.Evaluator.Evaluate(bestOverall)
	result.Best = bestOverall
	result.BestError = final.Error
	result.WinFractions = final.WinFractions

	log.Info("optimization complete",
		zap.Float64("best_error", result.BestError),
		zap.Float64s("win_fractions", result.WinFractions[:]),
		zap.Int("evaluations", result.Evaluations),
	)
	return result, nil
}

// evaluatePopulation scores candidates on a fixed worker pool. Results are
// stored by index so ordering never depends on scheduling.
func (o *Optimizer) evaluatePopulation(ctx context.Context, population []model.Candidate) ([]ScoredCandidate, error) {
	scored := make([]ScoredCandidate, len(population))
	workerCount := o.cfg.Workers
	if workerCount > len(population) {
		workerCount = len(population)
	}
	if workerCount <= 1 {
		for i, candidate := range population {
			scored[i] = ScoredCandidate{Candidate: candidate, Result: o.cfg.Evaluator.Evaluate(candidate)}
		}
		return scored, nil
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				scored[idx] = ScoredCandidate{Candidate: population[idx], Result: o.cfg.Evaluator.Evaluate(population[idx])}
			}
		}()
	}
	for i := range population {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scored, nil
}

func (o *Optimizer) nextGeneration(rng *rand.Rand, ranked []ScoredCandidate, generation int) ([]model.Candidate, []model.LineageRecord, error) {
	cfg := o.cfg
	next := make([]model.Candidate, 0, cfg.PopulationSize)
	var lineage []model.LineageRecord
	nextGeneration := generation + 1

	// Elites are deep-copied so later mutation can never reach the ranked record.
	for i := 0; i < cfg.EliteCount; i++ {
		elite := ranked[i].Candidate.Clone()
		next = append(next, elite)
		if cfg.RecordLineage {
			lineage = append(lineage, lineageRecord(elite, []string{ranked[i].Candidate.ID}, nextGeneration, "elite_clone"))
		}
	}

	parents := ranked[:cfg.PopulationSize/2]
	for len(next) < cfg.PopulationSize {
		a, b, err := cfg.Selector.PickParents(rng, parents)
		if err != nil {
			return nil, nil, err
		}
		child := cfg.Crossover.Cross(rng, a, b)
		cfg.Mutator.Mutate(rng, &child, cfg.Ranges)
		child.ID = fmt.Sprintf("%s-g%d-i%d", cfg.Metric, nextGeneration, len(next))
		next = append(next, child)
		if cfg.RecordLineage {
			op := cfg.Crossover.Name() + "+" + cfg.Mutator.Name()
			lineage = append(lineage, lineageRecord(child, []string{a.ID, b.ID}, nextGeneration, op))
		}
	}
	return next, lineage, nil
}

func lineageRecord(candidate model.Candidate, parents []string, generation int, op string) model.LineageRecord {
	return model.LineageRecord{
		CandidateID: candidate.ID,
		ParentIDs:   parents,
		Metric:      candidate.Metric,
		Generation:  generation,
		Operation:   op,
		Fingerprint: model.Fingerprint(candidate)[:16],
	}
}

func summarizeGeneration(metric model.Metric, generation int, ranked []ScoredCandidate, bestOverall float64, improved bool) model.GenerationDiagnostics {
	if len(ranked) == 0 {
		return model.GenerationDiagnostics{Metric: metric, Generation: generation}
	}
	total := 0.0
	fingerprints := make(map[string]struct{}, len(ranked))
	for _, item := range ranked {
		total += item.Result.Error
		fingerprints[model.Fingerprint(item.Candidate)] = struct{}{}
	}
	return model.GenerationDiagnostics{
		Metric:      metric,
		Generation:  generation,
		BestError:   ranked[0].Result.Error,
		MeanError:   total / float64(len(ranked)),
		WorstError:  ranked[len(ranked)-1].Result.Error,
		BestOverall: bestOverall,
		BestWin:     ranked[0].Result.WinFractions,
		Diversity:   len(fingerprints),
		Improved:    improved,
		Evaluations: len(ranked),
	}
}

type statsEvaluator interface {
	Stats() (hits, misses int64)
}

func cacheStats(evaluator fitness.Evaluator) (int64, int64) {
	if s, ok := evaluator.(statsEvaluator); ok {
		return s.Stats()
	}
	return 0, 0
}
