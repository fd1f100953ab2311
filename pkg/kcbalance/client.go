package kcbalance

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kcbalance/internal/config"
	"kcbalance/internal/evo"
	"kcbalance/internal/journey"
	"kcbalance/internal/logging"
	"kcbalance/internal/model"
	"kcbalance/internal/platform"
	"kcbalance/internal/stats"
	"kcbalance/internal/storage"
	"kcbalance/internal/telemetry"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "kcbalance.db"
	defaultRunsLimit    = 20
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zap.Logger
	// Registerer receives the GA progress collectors. Nil disables them.
	Registerer prometheus.Registerer
	Now        func() time.Time
}

type Client struct {
	store      storage.Store
	calibrator *platform.Calibrator
	logger     *zap.Logger
	collectors *telemetry.Collectors
	now        func() time.Time

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Config config.Config
	// RunID defaults to a random UUID.
	RunID    string
	Observer evo.Observer
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Results      []model.MetricResult
	Evaluations  int
	Duration     time.Duration
	Report       string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Seed         int64
	Players      int
	Population   int
	Generations  int
	Metrics      int
	TotalError   float64
	WorstMetric  string
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type ShowResult struct {
	Record model.CalibrationRecord
	// Report is empty when the run directory has no report.txt.
	Report string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// SeriesRequest selects one metric of one run. Limit keeps the first Limit
// entries when > 0.
type SeriesRequest struct {
	RunID  string
	Latest bool
	Metric model.Metric
	Limit  int
}

type SimulateRequest struct {
	Config config.Config
}

type SimulateSummary struct {
	Players  int
	Chapters []journey.ChapterSummary
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	logger := logging.OrNop(opts.Logger)
	var collectors *telemetry.Collectors
	if opts.Registerer != nil {
		collectors = telemetry.NewCollectors(opts.Registerer)
	}
	return &Client{
		store:        store,
		logger:       logger,
		collectors:   collectors,
		now:          opts.Now,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureCalibrator(ctx)
	return err
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := req.Config.Validate(); err != nil {
		return RunSummary{}, err
	}
	calibrator, err := c.ensureCalibrator(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	calReq, err := platform.RequestFromConfig(req.Config)
	if err != nil {
		return RunSummary{}, err
	}
	calReq.RunID = req.RunID
	calReq.Observer = req.Observer

	report, err := calibrator.Calibrate(ctx, calReq)
	if err != nil {
		return RunSummary{}, err
	}

	text := stats.FormatReport(stats.Report{
		RunID:       report.RunID,
		Players:     report.Players,
		Evaluations: report.Evaluations,
		Targets:     report.Targets,
		Results:     report.Results,
		Duration:    report.Duration,
	})
	runCfg := runConfigFor(report.RunID, req.Config)
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:         runCfg,
		Results:        report.Results,
		JourneySummary: report.JourneySummary,
		Lineage:        report.Lineage,
		Report:         text,
	})
	if err != nil {
		return RunSummary{}, err
	}
	entry := stats.IndexEntryFor(runCfg, report.Results, report.StartedAt.UTC().Format(time.RFC3339Nano))
	if err := stats.AppendRunIndex(c.artifactsDir, entry); err != nil {
		return RunSummary{}, err
	}
	c.logger.Info("run artifacts written",
		zap.String("run_id", report.RunID),
		zap.String("dir", runDir),
	)

	return RunSummary{
		RunID:        report.RunID,
		ArtifactsDir: filepath.Clean(runDir),
		Results:      report.Results,
		Evaluations:  report.Evaluations,
		Duration:     report.Duration,
		Report:       text,
	}, nil
}

func (c *Client) Simulate(_ context.Context, req SimulateRequest) (SimulateSummary, error) {
	if err := req.Config.Validate(); err != nil {
		return SimulateSummary{}, err
	}
	calReq, err := platform.RequestFromConfig(req.Config)
	if err != nil {
		return SimulateSummary{}, err
	}
	journeys, err := platform.Simulate(calReq)
	if err != nil {
		return SimulateSummary{}, err
	}
	return SimulateSummary{
		Players:  len(journeys),
		Chapters: journey.Summarize(journeys),
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Seed:         e.Seed,
			Players:      e.Players,
			Population:   e.PopulationSize,
			Generations:  e.Generations,
			Metrics:      e.Metrics,
			TotalError:   e.TotalError,
			WorstMetric:  e.WorstMetric,
		})
	}
	return out, nil
}

func (c *Client) Show(ctx context.Context, req ShowRequest) (ShowResult, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "show")
	if err != nil {
		return ShowResult{}, err
	}
	if _, err := c.ensureCalibrator(ctx); err != nil {
		return ShowResult{}, err
	}

	record, ok, err := c.store.GetCalibration(ctx, runID)
	if err != nil {
		return ShowResult{}, err
	}
	if !ok {
		record, ok, err = c.recordFromArtifacts(runID)
		if err != nil {
			return ShowResult{}, err
		}
		if !ok {
			return ShowResult{}, fmt.Errorf("run not found: %s", runID)
		}
	}
	report, _, err := stats.ReadReport(c.artifactsDir, runID)
	if err != nil {
		return ShowResult{}, err
	}
	return ShowResult{Record: record, Report: report}, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req SeriesRequest) ([]float64, error) {
	runID, err := c.resolveSeries(ctx, req, "fitness history")
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID, req.Metric)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id %s metric %s", runID, req.Metric)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req SeriesRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveSeries(ctx, req, "diagnostics")
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID, req.Metric)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id %s metric %s", runID, req.Metric)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) Lineage(ctx context.Context, req SeriesRequest) ([]model.LineageRecord, error) {
	runID, err := c.resolveSeries(ctx, req, "lineage")
	if err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID, req.Metric)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id %s metric %s", runID, req.Metric)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	out := make([]model.LineageRecord, len(lineage))
	copy(out, lineage)
	return out, nil
}

func (c *Client) resolveSeries(ctx context.Context, req SeriesRequest, what string) (string, error) {
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if req.Metric == "" {
		return "", fmt.Errorf("%s requires a metric", what)
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, what)
	if err != nil {
		return "", err
	}
	if _, err := c.ensureCalibrator(ctx); err != nil {
		return "", err
	}
	return runID, nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) recordFromArtifacts(runID string) (model.CalibrationRecord, bool, error) {
	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, runID)
	if err != nil || !ok {
		return model.CalibrationRecord{}, ok, err
	}
	results, ok, err := stats.ReadResults(c.artifactsDir, runID)
	if err != nil || !ok {
		return model.CalibrationRecord{}, ok, err
	}
	record := model.CalibrationRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           cfg.RunID,
		Seed:            cfg.Seed,
		Players:         cfg.Players,
		Targets:         cfg.Targets,
		Results:         results,
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return model.CalibrationRecord{}, false, err
	}
	for _, e := range entries {
		if e.RunID == runID {
			record.CreatedAtUTC = e.CreatedAtUTC
			break
		}
	}
	return record, true, nil
}

func (c *Client) ensureCalibrator(ctx context.Context) (*platform.Calibrator, error) {
	if c.calibrator != nil {
		return c.calibrator, nil
	}
	calibrator := platform.NewCalibrator(platform.Config{
		Store:   c.store,
		Logger:  c.logger,
		Metrics: c.collectors,
		Now:     c.now,
	})
	if err := calibrator.Init(ctx); err != nil {
		return nil, err
	}
	c.calibrator = calibrator
	return c.calibrator, nil
}

func runConfigFor(runID string, cfg config.Config) stats.RunConfig {
	return stats.RunConfig{
		RunID:               runID,
		Seed:                cfg.Seed,
		Metrics:             append([]model.Metric(nil), cfg.Metrics...),
		Targets:             cfg.Targets,
		Players:             cfg.Simulation.Players,
		Chapters:            cfg.Simulation.Chapters,
		DecisionsPerChapter: cfg.Simulation.DecisionsPerChapter,
		PoolSize:            cfg.Simulation.PoolSize,
		PopulationSize:      cfg.GA.PopulationSize,
		Generations:         cfg.GA.Generations,
		MutationRate:        cfg.GA.MutationRate,
		MutationStrength:    cfg.GA.MutationStrength,
		EliteCount:          cfg.GA.EliteCount,
		Workers:             cfg.Workers,
		EvalWorkers:         cfg.GA.EvalWorkers,
		Selection:           cfg.GA.Selector,
		Crossover:           cfg.GA.Crossover,
		Evaluator:           cfg.GA.Evaluator,
		CacheSize:           cfg.GA.CacheSize,
	}
}
