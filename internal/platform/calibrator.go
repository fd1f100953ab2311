package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kcbalance/internal/evo"
	"kcbalance/internal/fitness"
	"kcbalance/internal/journey"
	"kcbalance/internal/model"
	"kcbalance/internal/storage"
	"kcbalance/internal/telemetry"
)

type Config struct {
	Store   storage.Store
	Logger  *zap.Logger
	Metrics *telemetry.Collectors
	// Now defaults to time.Now.
	Now func() time.Time
}

// GAOptions are the optimizer settings shared by every metric of a run.
type GAOptions struct {
	PopulationSize   int
	Generations      int
	MutationRate     float64
	MutationStrength float64
	EliteCount       int
	EvalWorkers      int
	Selection        string
	TournamentSize   int
	Crossover        string
	Evaluator        string
	CacheSize        int
	RecordLineage    bool
}

type CalibrationRequest struct {
	// RunID defaults to a random UUID.
	RunID      string
	Seed       int64
	Catalog    model.Catalog
	Metrics    []model.Metric
	Ranges     map[model.Metric]model.MetricRanges
	Targets    fitness.Targets
	Simulation journey.Config
	GA         GAOptions
	// Workers bounds how many metrics are optimized concurrently. With one
	// worker every metric draws from a single random stream seeded by Seed;
	// otherwise metric i uses its own stream seeded by Seed+i+1.
	Workers int
	// Journeys skips simulation when set.
	Journeys []model.Journey
	// Observer is called for every generation of every metric. With more
	// than one worker it is called concurrently.
	Observer evo.Observer
}

type CalibrationReport struct {
	RunID          string
	Seed           int64
	Players        int
	Targets        fitness.Targets
	Results        []model.MetricResult
	Lineage        map[model.Metric][]model.LineageRecord
	JourneySummary []journey.ChapterSummary
	Evaluations    int
	StartedAt      time.Time
	Duration       time.Duration
}

func (r CalibrationReport) Record() model.CalibrationRecord {
	return model.CalibrationRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           r.RunID,
		Seed:            r.Seed,
		Players:         r.Players,
		Targets:         r.Targets,
		Results:         r.Results,
		CreatedAtUTC:    r.StartedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Calibrator simulates journeys once per run and learns goal and weights for
// each requested metric.
type Calibrator struct {
	store   storage.Store
	logger  *zap.Logger
	metrics *telemetry.Collectors
	now     func() time.Time

	mu      sync.RWMutex
	started bool
}

func NewCalibrator(cfg Config) *Calibrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Calibrator{
		store:   cfg.Store,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

func (c *Calibrator) Init(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("store is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

func (c *Calibrator) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

func (c *Calibrator) Store() storage.Store {
	return c.store
}

func Simulate(req CalibrationRequest) ([]model.Journey, error) {
	sim, err := journey.NewSimulator(req.Simulation, req.Catalog)
	if err != nil {
		return nil, err
	}
	return sim.Simulate(rand.New(rand.NewSource(req.Seed)))
}

func (c *Calibrator) Calibrate(ctx context.Context, req CalibrationRequest) (CalibrationReport, error) {
	if !c.Started() {
		return CalibrationReport{}, fmt.Errorf("calibrator is not initialized")
	}
	if err := validateRequest(req); err != nil {
		return CalibrationReport{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := c.logger.With(zap.String("run_id", runID))
	startedAt := c.now()
	rng := rand.New(rand.NewSource(req.Seed))

	journeys := req.Journeys
	if journeys == nil {
		sim, err := journey.NewSimulator(req.Simulation, req.Catalog)
		if err != nil {
			return CalibrationReport{}, err
		}
		journeys, err = sim.Simulate(rng)
		if err != nil {
			return CalibrationReport{}, err
		}
		log.Info("journeys simulated",
			zap.Int("players", len(journeys)),
			zap.Int("chapters", req.Simulation.Chapters),
			zap.Int("decisions_per_chapter", req.Simulation.DecisionsPerChapter),
		)
	}

	shared, err := sharedEvaluator(journeys, req.Targets, req.GA.Evaluator)
	if err != nil {
		return CalibrationReport{}, err
	}

	runs := make([]evo.RunResult, len(req.Metrics))
	runMetric := func(ctx context.Context, i int, metricRNG *rand.Rand) error {
		metric := req.Metrics[i]
		optimizer, err := c.newOptimizer(req, metric, journeys, shared)
		if err != nil {
			return fmt.Errorf("%s: %w", metric, err)
		}
		started := time.Now()
		result, err := optimizer.Run(ctx, metricRNG)
		if err != nil {
			return fmt.Errorf("%s: %w", metric, err)
		}
		elapsed := time.Since(started)
		c.metrics.ObserveRun(metric, result.BestError, elapsed)
		log.Info("metric calibrated",
			zap.String("metric", string(metric)),
			zap.Float64("best_error", result.BestError),
			zap.Float64s("win_fractions", result.WinFractions[:]),
			zap.Duration("elapsed", elapsed),
		)
		runs[i] = result
		return nil
	}

	if req.Workers <= 1 {
		for i := range req.Metrics {
			if err := runMetric(ctx, i, rng); err != nil {
				return CalibrationReport{}, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(req.Workers)
		for i := range req.Metrics {
			metricRNG := rand.New(rand.NewSource(req.Seed + int64(i+1)))
			g.Go(func() error {
				return runMetric(gctx, i, metricRNG)
			})
		}
		if err := g.Wait(); err != nil {
			return CalibrationReport{}, err
		}
	}

	report := CalibrationReport{
		RunID:          runID,
		Seed:           req.Seed,
		Players:        len(journeys),
		Targets:        req.Targets,
		Results:        make([]model.MetricResult, 0, len(runs)),
		JourneySummary: journey.Summarize(journeys),
		StartedAt:      startedAt,
	}
	if req.GA.RecordLineage {
		report.Lineage = make(map[model.Metric][]model.LineageRecord, len(runs))
	}
	for _, run := range runs {
		report.Results = append(report.Results, model.MetricResult{
			Metric:           run.Metric,
			Candidate:        run.Best,
			Error:            run.BestError,
			WinFractions:     run.WinFractions,
			BestByGeneration: run.BestByGeneration,
			Diagnostics:      run.Diagnostics,
		})
		report.Evaluations += run.Evaluations
		if req.GA.RecordLineage {
			report.Lineage[run.Metric] = stampLineage(run.Lineage)
		}
	}

	if err := c.persist(ctx, report); err != nil {
		return CalibrationReport{}, err
	}
	report.Duration = c.now().Sub(startedAt)
	log.Info("calibration complete",
		zap.Int("metrics", len(report.Results)),
		zap.Int("evaluations", report.Evaluations),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (c *Calibrator) newOptimizer(req CalibrationRequest, metric model.Metric, journeys []model.Journey, shared fitness.Evaluator) (*evo.Optimizer, error) {
	evaluator := shared
	if req.GA.CacheSize > 0 {
		cached, err := fitness.NewCached(shared, req.GA.CacheSize)
		if err != nil {
			return nil, err
		}
		evaluator = cached
	}
	selector, err := SelectorFromName(req.GA.Selection, req.GA.TournamentSize)
	if err != nil {
		return nil, err
	}
	crossover, err := CrossoverFromName(req.GA.Crossover)
	if err != nil {
		return nil, err
	}

	observer := func(diag model.GenerationDiagnostics) {
		c.metrics.ObserveGeneration(diag)
		if req.Observer != nil {
			req.Observer(diag)
		}
	}
	return evo.NewOptimizer(evo.Config{
		Metric:           metric,
		Ranges:           req.Ranges[metric],
		KCs:              req.Catalog.KCsFor(metric),
		Journeys:         journeys,
		Targets:          req.Targets,
		Evaluator:        evaluator,
		PopulationSize:   req.GA.PopulationSize,
		Generations:      req.GA.Generations,
		MutationRate:     req.GA.MutationRate,
		MutationStrength: req.GA.MutationStrength,
		EliteCount:       req.GA.EliteCount,
		Workers:          req.GA.EvalWorkers,
		RecordLineage:    req.GA.RecordLineage,
		Selector:         selector,
		Crossover:        crossover,
		Observer:         observer,
		Logger:           c.logger,
	})
}

func (c *Calibrator) persist(ctx context.Context, report CalibrationReport) error {
	if err := c.store.SaveCalibration(ctx, report.Record()); err != nil {
		return fmt.Errorf("save calibration %s: %w", report.RunID, err)
	}
	for _, result := range report.Results {
		if err := c.store.SaveFitnessHistory(ctx, report.RunID, result.Metric, result.BestByGeneration); err != nil {
			return err
		}
		if err := c.store.SaveGenerationDiagnostics(ctx, report.RunID, result.Metric, result.Diagnostics); err != nil {
			return err
		}
		if lineage, ok := report.Lineage[result.Metric]; ok {
			if err := c.store.SaveLineage(ctx, report.RunID, result.Metric, lineage); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRequest(req CalibrationRequest) error {
	if req.Catalog.Len() == 0 {
		return fmt.Errorf("%w: kc catalog is empty", evo.ErrInvalidConfig)
	}
	if len(req.Metrics) == 0 {
		return fmt.Errorf("%w: at least one metric is required", evo.ErrInvalidConfig)
	}
	seen := make(map[model.Metric]struct{}, len(req.Metrics))
	for _, metric := range req.Metrics {
		if _, dup := seen[metric]; dup {
			return fmt.Errorf("%w: duplicate metric %s", evo.ErrInvalidConfig, metric)
		}
		seen[metric] = struct{}{}
		if _, ok := req.Ranges[metric]; !ok {
			return fmt.Errorf("%w: no ranges for metric %s", evo.ErrInvalidConfig, metric)
		}
	}
	if req.Journeys == nil && req.Simulation.Players <= 0 {
		return fmt.Errorf("%w: players must be > 0", evo.ErrInvalidConfig)
	}
	return nil
}

func sharedEvaluator(journeys []model.Journey, targets fitness.Targets, name string) (fitness.Evaluator, error) {
	switch name {
	case "", "direct":
		return fitness.NewDirect(journeys, targets), nil
	case "matrix":
		return fitness.NewMatrix(journeys, targets), nil
	default:
		return nil, fmt.Errorf("%w: unsupported evaluator: %s", evo.ErrInvalidConfig, name)
	}
}

func stampLineage(lineage []model.LineageRecord) []model.LineageRecord {
	out := make([]model.LineageRecord, len(lineage))
	for i, record := range lineage {
		record.VersionedRecord = storage.CurrentVersion()
		out[i] = record
	}
	return out
}
