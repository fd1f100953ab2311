package platform

import (
	"kcbalance/internal/config"
	"kcbalance/internal/fitness"
	"kcbalance/internal/journey"
	"kcbalance/internal/model"
)

func RequestFromConfig(cfg config.Config) (CalibrationRequest, error) {
	catalog, err := cfg.KCCatalog()
	if err != nil {
		return CalibrationRequest{}, err
	}
	ranges := make(map[model.Metric]model.MetricRanges, len(cfg.Ranges))
	for metric, r := range cfg.Ranges {
		ranges[metric] = r
	}
	return CalibrationRequest{
		Seed:    cfg.Seed,
		Catalog: catalog,
		Metrics: append([]model.Metric(nil), cfg.Metrics...),
		Ranges:  ranges,
		Targets: fitness.Targets(cfg.Targets),
		Simulation: journey.Config{
			Players:             cfg.Simulation.Players,
			Chapters:            cfg.Simulation.Chapters,
			DecisionsPerChapter: cfg.Simulation.DecisionsPerChapter,
			PoolSize:            cfg.Simulation.PoolSize,
		},
		GA: GAOptions{
			PopulationSize:   cfg.GA.PopulationSize,
			Generations:      cfg.GA.Generations,
			MutationRate:     cfg.GA.MutationRate,
			MutationStrength: cfg.GA.MutationStrength,
			EliteCount:       cfg.GA.EliteCount,
			EvalWorkers:      cfg.GA.EvalWorkers,
			Selection:        cfg.GA.Selector,
			TournamentSize:   cfg.GA.TournamentSize,
			Crossover:        cfg.GA.Crossover,
			Evaluator:        cfg.GA.Evaluator,
			CacheSize:        cfg.GA.CacheSize,
			RecordLineage:    cfg.GA.RecordLineage,
		},
		Workers: cfg.Workers,
	}, nil
}
