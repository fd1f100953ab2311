package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"kcbalance/internal/model"
)

func TestDefaultMatchesBuiltInTables(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate default: %v", err)
	}

	if !reflect.DeepEqual(cfg.Metrics, model.DefaultMetrics) {
		t.Fatalf("unexpected metrics: %v", cfg.Metrics)
	}
	if cfg.Targets != [model.Chapters]float64{0, 0.65, 0.85} {
		t.Fatalf("unexpected targets: %v", cfg.Targets)
	}
	if len(cfg.Catalog) != 15 {
		t.Fatalf("expected 15 catalog entries, got %d", len(cfg.Catalog))
	}
	sim := cfg.Simulation
	if sim.Players != 2000 || sim.Chapters != 3 || sim.DecisionsPerChapter != 3 || sim.PoolSize != 500 {
		t.Fatalf("unexpected simulation defaults: %+v", sim)
	}
	ga := cfg.GA
	if ga.PopulationSize != 100 || ga.Generations != 50 || ga.MutationRate != 0.1 || ga.MutationStrength != 0.2 || ga.EliteCount != 5 {
		t.Fatalf("unexpected ga defaults: %+v", ga)
	}

	if got := cfg.Ranges[model.MetricRevenue].Weight; got != (model.Range{Min: 100, Max: 1500}) {
		t.Fatalf("unexpected revenue weight range: %+v", got)
	}
	if got := cfg.Ranges[model.MetricRevenue].Goal; got != (model.Range{Min: 2000, Max: 15000}) {
		t.Fatalf("unexpected revenue goal range: %+v", got)
	}
	if got := cfg.Ranges[model.MetricReputation].Weight; got != (model.Range{Min: 0.5, Max: 10}) {
		t.Fatalf("unexpected reputation weight range: %+v", got)
	}
	if got := cfg.Ranges[model.MetricRiskTaking].Goal; got != (model.Range{Min: 5, Max: 60}) {
		t.Fatalf("unexpected risk taking goal range: %+v", got)
	}

	catalog, err := cfg.KCCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if got := catalog.KCsFor(model.MetricRiskTaking); !reflect.DeepEqual(got, []string{"KC14", "KC16", "KC19"}) {
		t.Fatalf("unexpected risk taking kcs: %v", got)
	}
	if got := catalog.KCsFor(model.MetricEthicalDecisionMaking); !reflect.DeepEqual(got, []string{"KC13", "KC16", "KC18"}) {
		t.Fatalf("unexpected ethical decision making kcs: %v", got)
	}
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, "kcbalance.yaml", `
seed: 7
ga:
  generations: 12
  population_size: 40
ranges:
  Revenue:
    weight: {min: 200, max: 900}
    goal: {min: 1000, max: 5000}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Seed != 7 || cfg.GA.Generations != 12 || cfg.GA.PopulationSize != 40 {
		t.Fatalf("file values not applied: seed=%d ga=%+v", cfg.Seed, cfg.GA)
	}
	if cfg.GA.MutationRate != 0.1 {
		t.Fatalf("untouched key lost its default: %v", cfg.GA.MutationRate)
	}
	if got := cfg.Ranges[model.MetricRevenue].Weight; got != (model.Range{Min: 200, Max: 900}) {
		t.Fatalf("unexpected revenue weight range: %+v", got)
	}
	if _, ok := cfg.Ranges[model.MetricRiskTaking]; !ok {
		t.Fatal("range overlay dropped other metrics")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "ga:\n  populaton_size: 10\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestLoadAcceptsEmptyFile(t *testing.T) {
	path := writeConfig(t, "empty.yaml", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GA.PopulationSize != 100 {
		t.Fatalf("expected default population, got %d", cfg.GA.PopulationSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KCBALANCE_SEED", "99")
	t.Setenv("KCBALANCE_PLAYERS", "300")
	t.Setenv("KCBALANCE_GENERATIONS", "4")
	t.Setenv("KCBALANCE_POPULATION", "24")
	t.Setenv("KCBALANCE_WORKERS", "3")
	t.Setenv("KCBALANCE_LOG_LEVEL", "debug")
	t.Setenv("KCBALANCE_STORE", "memory")
	t.Setenv("KCBALANCE_DB_PATH", "/tmp/other.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Seed != 99 || cfg.Simulation.Players != 300 || cfg.GA.Generations != 4 || cfg.GA.PopulationSize != 24 || cfg.Workers != 3 {
		t.Fatalf("numeric overrides not applied: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Storage.Kind != "memory" || cfg.Storage.DBPath != "/tmp/other.db" {
		t.Fatalf("string overrides not applied: log=%+v storage=%+v", cfg.Log, cfg.Storage)
	}
}

func TestEnvOverrideParseError(t *testing.T) {
	t.Setenv("KCBALANCE_PLAYERS", "many")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "environment override") {
		t.Fatalf("expected environment override error, got %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero players", func(c *Config) { c.Simulation.Players = 0 }, "Players"},
		{"negative decisions", func(c *Config) { c.Simulation.DecisionsPerChapter = -1 }, "DecisionsPerChapter"},
		{"mutation rate", func(c *Config) { c.GA.MutationRate = 1.5 }, "MutationRate"},
		{"target out of range", func(c *Config) { c.Targets[2] = 1.2 }, "Targets"},
		{"unknown selector", func(c *Config) { c.GA.Selector = "roulette" }, "Selector"},
		{"elite above population", func(c *Config) { c.GA.EliteCount = 101 }, "elite count"},
		{"small parent pool", func(c *Config) { c.GA.PopulationSize = 3; c.GA.EliteCount = 1 }, "parent pool"},
		{"inverted weight range", func(c *Config) {
			c.Ranges[model.MetricRevenue] = model.MetricRanges{
				Weight: model.Range{Min: 10, Max: 1},
				Goal:   model.Range{Min: 1, Max: 2},
			}
		}, "weight range"},
		{"metric without ranges", func(c *Config) { c.Metrics = append(c.Metrics, "Luck") }, "no ranges"},
		{"duplicate metric", func(c *Config) { c.Metrics = append(c.Metrics, model.MetricRevenue) }, "duplicate metric"},
		{"duplicate kc", func(c *Config) { c.Catalog = append(c.Catalog, c.Catalog[0]) }, "duplicate kc"},
		{"unknown catalog metric", func(c *Config) {
			c.Catalog = append(c.Catalog, model.KCEntry{ID: "KC99", Metrics: []model.Metric{"Luck"}})
		}, "unknown metric"},
		{"sqlite without path", func(c *Config) { c.Storage.Kind = "sqlite"; c.Storage.DBPath = "" }, "db_path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Default()
			if err != nil {
				t.Fatalf("default: %v", err)
			}
			tc.mutate(&cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestZeroDecisionsPerChapterIsValid(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Simulation.DecisionsPerChapter = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected zero decisions to validate: %v", err)
	}
}

func TestMetricWithoutKCsIsValid(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Metrics = append(cfg.Metrics, "Luck")
	cfg.Ranges["Luck"] = model.MetricRanges{Weight: model.Range{Min: 1, Max: 2}, Goal: model.Range{Min: 1, Max: 2}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	catalog, err := cfg.KCCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if kcs := catalog.KCsFor("Luck"); len(kcs) != 0 {
		t.Fatalf("expected no kcs, got %v", kcs)
	}
}

func TestYAMLRoundTripsThroughLoad(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Seed = 1234
	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}

	loaded, err := Load(writeConfig(t, "effective.yaml", string(data)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Fatalf("round trip changed config:\nwant=%+v\ngot=%+v", cfg, loaded)
	}
}
