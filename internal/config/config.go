package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"kcbalance/internal/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KCBALANCE_"

//go:embed defaults.yaml
var defaultsYAML []byte

type Simulation struct {
	Players             int `yaml:"players" json:"players" validate:"gt=0"`
	Chapters            int `yaml:"chapters" json:"chapters" validate:"gt=0"`
	DecisionsPerChapter int `yaml:"decisions_per_chapter" json:"decisions_per_chapter" validate:"gte=0"`
	PoolSize            int `yaml:"pool_size" json:"pool_size" validate:"gte=0"`
}

type GA struct {
	PopulationSize   int     `yaml:"population_size" json:"population_size" validate:"gt=0"`
	Generations      int     `yaml:"generations" json:"generations" validate:"gt=0"`
	MutationRate     float64 `yaml:"mutation_rate" json:"mutation_rate" validate:"gte=0,lte=1"`
	MutationStrength float64 `yaml:"mutation_strength" json:"mutation_strength" validate:"gte=0"`
	EliteCount       int     `yaml:"elite_count" json:"elite_count" validate:"gte=0"`
	EvalWorkers      int     `yaml:"eval_workers" json:"eval_workers" validate:"gte=0"`
	Selector         string  `yaml:"selector" json:"selector" validate:"omitempty,oneof=uniform_pair tournament"`
	TournamentSize   int     `yaml:"tournament_size" json:"tournament_size" validate:"gte=0"`
	Crossover        string  `yaml:"crossover" json:"crossover" validate:"omitempty,oneof=arithmetic uniform"`
	Evaluator        string  `yaml:"evaluator" json:"evaluator" validate:"omitempty,oneof=direct matrix"`
	CacheSize        int     `yaml:"cache_size" json:"cache_size" validate:"gte=0"`
	RecordLineage    bool    `yaml:"record_lineage" json:"record_lineage"`
}

type Log struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
}

type Storage struct {
	Kind   string `yaml:"kind" json:"kind" validate:"omitempty,oneof=memory sqlite"`
	DBPath string `yaml:"db_path" json:"db_path"`
}

// Config is the complete description of a calibration session.
type Config struct {
	Seed int64 `yaml:"seed" json:"seed"`
	// Workers bounds how many metrics are optimized concurrently.
	Workers int                                  `yaml:"workers" json:"workers" validate:"gte=0"`
	Metrics []model.Metric                       `yaml:"metrics" json:"metrics" validate:"required,min=1,dive,required"`
	Targets [model.Chapters]float64              `yaml:"targets" json:"targets" validate:"dive,gte=0,lte=1"`
	Catalog []model.KCEntry                      `yaml:"catalog" json:"catalog" validate:"required,min=1"`
	Ranges  map[model.Metric]model.MetricRanges  `yaml:"ranges" json:"ranges" validate:"required"`

	Simulation Simulation `yaml:"simulation" json:"simulation"`
	GA         GA         `yaml:"ga" json:"ga"`
	Log        Log        `yaml:"log" json:"log"`
	Storage    Storage    `yaml:"storage" json:"storage"`
}

type envOverrides struct {
	Seed        int64  `env:"SEED"`
	Players     int    `env:"PLAYERS"`
	Generations int    `env:"GENERATIONS"`
	Population  int    `env:"POPULATION"`
	Workers     int    `env:"WORKERS"`
	LogLevel    string `env:"LOG_LEVEL"`
	Store       string `env:"STORE"`
	DBPath      string `env:"DB_PATH"`
}

func Default() (Config, error) {
	var cfg Config
	if err := decodeYAML(defaultsYAML, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode embedded defaults: %w", err)
	}
	return cfg, nil
}

// Load overlays the YAML file at path (if any) on the defaults, applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func ApplyEnv(cfg *Config) error {
	overrides := envOverrides{
		Seed:        cfg.Seed,
		Players:     cfg.Simulation.Players,
		Generations: cfg.GA.Generations,
		Population:  cfg.GA.PopulationSize,
		Workers:     cfg.Workers,
		LogLevel:    cfg.Log.Level,
		Store:       cfg.Storage.Kind,
		DBPath:      cfg.Storage.DBPath,
	}
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: EnvPrefix}); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return fmt.Errorf("environment override: %w", aggErr.Errors[0])
		}
		return fmt.Errorf("environment override: %w", err)
	}
	cfg.Seed = overrides.Seed
	cfg.Simulation.Players = overrides.Players
	cfg.GA.Generations = overrides.Generations
	cfg.GA.PopulationSize = overrides.Population
	cfg.Workers = overrides.Workers
	cfg.Log.Level = overrides.LogLevel
	cfg.Storage.Kind = overrides.Store
	cfg.Storage.DBPath = overrides.DBPath
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects configurations the calibrator cannot run. It is meant to be
// called once at setup.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Param() != "" {
				return fmt.Errorf("invalid config: %s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
			}
			return fmt.Errorf("invalid config: %s must satisfy %s", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.GA.EliteCount > c.GA.PopulationSize {
		return fmt.Errorf("invalid config: elite count %d exceeds population size %d", c.GA.EliteCount, c.GA.PopulationSize)
	}
	if c.GA.PopulationSize/2 < 2 {
		return fmt.Errorf("invalid config: population size %d leaves a parent pool below 2", c.GA.PopulationSize)
	}
	if c.Storage.Kind == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("invalid config: sqlite store requires db_path")
	}

	seen := make(map[model.Metric]struct{}, len(c.Metrics))
	for _, metric := range c.Metrics {
		if _, dup := seen[metric]; dup {
			return fmt.Errorf("invalid config: duplicate metric %s", metric)
		}
		seen[metric] = struct{}{}
		ranges, ok := c.Ranges[metric]
		if !ok {
			return fmt.Errorf("invalid config: no ranges for metric %s", metric)
		}
		if ranges.Weight.Min > ranges.Weight.Max {
			return fmt.Errorf("invalid config: weight range min > max for %s", metric)
		}
		if ranges.Goal.Min > ranges.Goal.Max {
			return fmt.Errorf("invalid config: goal range min > max for %s", metric)
		}
	}

	if _, err := model.NewCatalog(c.Catalog); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, entry := range c.Catalog {
		for _, metric := range entry.Metrics {
			if _, ok := c.Ranges[metric]; !ok {
				return fmt.Errorf("invalid config: kc %s maps to unknown metric %s", entry.ID, metric)
			}
		}
	}
	return nil
}

func (c Config) KCCatalog() (model.Catalog, error) {
	return model.NewCatalog(c.Catalog)
}

func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
