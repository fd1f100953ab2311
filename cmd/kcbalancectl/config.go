package main

import (
	"flag"
	"fmt"
	"strings"

	"kcbalance/internal/config"
	"kcbalance/internal/model"
)

// sessionFlags are accepted by every command that opens a client.
type sessionFlags struct {
	configPath *string
	storeKind  *string
	dbPath     *string
	artifacts  *string
	logLevel   *string
	logFormat  *string
}

func addSessionFlags(fs *flag.FlagSet) *sessionFlags {
	return &sessionFlags{
		configPath: fs.String("config", "", "optional YAML config path overlaid on built-in defaults"),
		storeKind:  fs.String("store", "", "store backend: memory|sqlite (default from config)"),
		dbPath:     fs.String("db-path", "", "sqlite database path (default from config)"),
		artifacts:  fs.String("artifacts", artifactsDir, "run artifacts directory"),
		logLevel:   fs.String("log-level", "", "log level: debug|info|warn|error (default from config)"),
		logFormat:  fs.String("log-format", "", "log format: console|json (default from config)"),
	}
}

func (s *sessionFlags) values() map[string]any {
	return map[string]any{
		"store":      *s.storeKind,
		"db-path":    *s.dbPath,
		"log-level":  *s.logLevel,
		"log-format": *s.logFormat,
	}
}

func setFlagsOf(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func loadSession(path string, set map[string]bool, flagValue map[string]any) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := overrideFromFlags(&cfg, set, flagValue); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func overrideFromFlags(cfg *config.Config, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "seed":
			cfg.Seed = v.(int64)
		case "players":
			cfg.Simulation.Players = v.(int)
		case "decisions":
			cfg.Simulation.DecisionsPerChapter = v.(int)
		case "pool-size":
			cfg.Simulation.PoolSize = v.(int)
		case "generations":
			cfg.GA.Generations = v.(int)
		case "population":
			cfg.GA.PopulationSize = v.(int)
		case "elite":
			cfg.GA.EliteCount = v.(int)
		case "mutation-rate":
			cfg.GA.MutationRate = v.(float64)
		case "mutation-strength":
			cfg.GA.MutationStrength = v.(float64)
		case "workers":
			cfg.Workers = v.(int)
		case "eval-workers":
			cfg.GA.EvalWorkers = v.(int)
		case "selection":
			cfg.GA.Selector = v.(string)
		case "crossover":
			cfg.GA.Crossover = v.(string)
		case "evaluator":
			cfg.GA.Evaluator = v.(string)
		case "cache-size":
			cfg.GA.CacheSize = v.(int)
		case "lineage":
			cfg.GA.RecordLineage = v.(bool)
		case "metrics":
			metrics, err := parseMetrics(v.(string))
			if err != nil {
				return err
			}
			cfg.Metrics = metrics
		case "store":
			cfg.Storage.Kind = v.(string)
		case "db-path":
			cfg.Storage.DBPath = v.(string)
		case "log-level":
			cfg.Log.Level = v.(string)
		case "log-format":
			cfg.Log.Format = v.(string)
		}
	}
	return nil
}

func parseMetrics(list string) ([]model.Metric, error) {
	var out []model.Metric
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, model.Metric(part))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metrics list is empty")
	}
	return out, nil
}
