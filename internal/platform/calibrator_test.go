package platform

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kcbalance/internal/config"
	"kcbalance/internal/evo"
	"kcbalance/internal/fitness"
	"kcbalance/internal/model"
	"kcbalance/internal/storage"
	"kcbalance/internal/telemetry"
)

func smallRequest(t *testing.T) CalibrationRequest {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Seed = 11
	cfg.Simulation.Players = 80
	cfg.Simulation.PoolSize = 60
	cfg.GA.PopulationSize = 12
	cfg.GA.Generations = 4
	cfg.GA.EliteCount = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	req, err := RequestFromConfig(cfg)
	if err != nil {
		t.Fatalf("request from config: %v", err)
	}
	return req
}

func newTestCalibrator(t *testing.T, store storage.Store) *Calibrator {
	t.Helper()
	c := NewCalibrator(Config{
		Store: store,
		Now:   func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

func TestCalibratorRequiresInit(t *testing.T) {
	if err := NewCalibrator(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
	c := NewCalibrator(Config{Store: storage.NewMemoryStore()})
	if _, err := c.Calibrate(context.Background(), smallRequest(t)); err == nil {
		t.Fatal("expected not initialized error")
	}
}

func TestCalibrateAllMetricsAndPersist(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestCalibrator(t, store)
	req := smallRequest(t)
	req.RunID = "run-all"

	report, err := c.Calibrate(context.Background(), req)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if report.RunID != "run-all" || report.Players != 80 {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if len(report.Results) != len(model.DefaultMetrics) {
		t.Fatalf("expected %d results, got %d", len(model.DefaultMetrics), len(report.Results))
	}
	if report.Evaluations != len(model.DefaultMetrics)*12*4 {
		t.Fatalf("unexpected evaluation count: %d", report.Evaluations)
	}
	if len(report.JourneySummary) != 3 {
		t.Fatalf("expected 3 chapter summaries, got %d", len(report.JourneySummary))
	}

	for i, result := range report.Results {
		if result.Metric != model.DefaultMetrics[i] {
			t.Fatalf("result %d: metric %s out of order", i, result.Metric)
		}
		if !evo.WithinBounds(result.Candidate, req.Ranges[result.Metric]) {
			t.Fatalf("%s: best candidate out of bounds: %+v", result.Metric, result.Candidate)
		}
		kcs := req.Catalog.KCsFor(result.Metric)
		if len(result.Candidate.Weights) != len(kcs) {
			t.Fatalf("%s: expected %d weights, got %v", result.Metric, len(kcs), result.Candidate.Weights)
		}
		if len(result.BestByGeneration) != 4 {
			t.Fatalf("%s: expected 4 history points, got %d", result.Metric, len(result.BestByGeneration))
		}
		for g := 1; g < len(result.BestByGeneration); g++ {
			if result.BestByGeneration[g] > result.BestByGeneration[g-1] {
				t.Fatalf("%s: best-ever error increased: %v", result.Metric, result.BestByGeneration)
			}
		}
		last := result.BestByGeneration[len(result.BestByGeneration)-1]
		if math.Abs(result.Error-last) > 1e-12 {
			t.Fatalf("%s: reported error %v differs from best-ever %v", result.Metric, result.Error, last)
		}
	}

	record, ok, err := store.GetCalibration(context.Background(), "run-all")
	if err != nil || !ok {
		t.Fatalf("get calibration: ok=%t err=%v", ok, err)
	}
	if record.SchemaVersion != storage.CurrentSchemaVersion || record.CodecVersion != storage.CurrentCodecVersion {
		t.Fatalf("record not stamped: %+v", record.VersionedRecord)
	}
	if record.CreatedAtUTC != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected created at: %s", record.CreatedAtUTC)
	}
	if len(record.Results) != len(report.Results) {
		t.Fatalf("persisted %d results, want %d", len(record.Results), len(report.Results))
	}
	history, ok, err := store.GetFitnessHistory(context.Background(), "run-all", model.MetricRevenue)
	if err != nil || !ok || len(history) != 4 {
		t.Fatalf("fitness history: ok=%t err=%v len=%d", ok, err, len(history))
	}
	diags, ok, err := store.GetGenerationDiagnostics(context.Background(), "run-all", model.MetricRiskTaking)
	if err != nil || !ok || len(diags) != 4 {
		t.Fatalf("diagnostics: ok=%t err=%v len=%d", ok, err, len(diags))
	}
	if _, ok, _ := store.GetLineage(context.Background(), "run-all", model.MetricRevenue); ok {
		t.Fatal("lineage persisted without being requested")
	}
}

func TestCalibrateReportedErrorMatchesReevaluation(t *testing.T) {
	c := newTestCalibrator(t, storage.NewMemoryStore())
	req := smallRequest(t)
	req.Metrics = []model.Metric{model.MetricReputation}
	journeys, err := Simulate(req)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	req.Journeys = journeys

	report, err := c.Calibrate(context.Background(), req)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	result := report.Results[0]
	got := fitness.NewDirect(journeys, req.Targets).Evaluate(result.Candidate)
	if got.Error != result.Error || got.WinFractions != result.WinFractions {
		t.Fatalf("reevaluation mismatch: got %+v want error=%v wins=%v", got, result.Error, result.WinFractions)
	}
}

func TestCalibrateIsDeterministicForSeed(t *testing.T) {
	for _, workers := range []int{1, 3} {
		req := smallRequest(t)
		req.Workers = workers

		first, err := newTestCalibrator(t, storage.NewMemoryStore()).Calibrate(context.Background(), req)
		if err != nil {
			t.Fatalf("workers=%d first run: %v", workers, err)
		}
		second, err := newTestCalibrator(t, storage.NewMemoryStore()).Calibrate(context.Background(), req)
		if err != nil {
			t.Fatalf("workers=%d second run: %v", workers, err)
		}
		for i := range first.Results {
			a, b := first.Results[i], second.Results[i]
			if a.Metric != b.Metric || a.Error != b.Error || model.Fingerprint(a.Candidate) != model.Fingerprint(b.Candidate) {
				t.Fatalf("workers=%d %s: runs diverged: %+v vs %+v", workers, a.Metric, a, b)
			}
		}
	}
}

func TestCalibrateGeneratesRunIDAndRecordsLineage(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestCalibrator(t, store)
	req := smallRequest(t)
	req.Metrics = []model.Metric{model.MetricRiskTaking}
	req.GA.RecordLineage = true

	report, err := c.Calibrate(context.Background(), req)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if report.RunID == "" {
		t.Fatal("expected generated run id")
	}
	lineage, ok, err := store.GetLineage(context.Background(), report.RunID, model.MetricRiskTaking)
	if err != nil || !ok {
		t.Fatalf("get lineage: ok=%t err=%v", ok, err)
	}
	if len(lineage) == 0 || len(lineage) != len(report.Lineage[model.MetricRiskTaking]) {
		t.Fatalf("unexpected lineage size: %d", len(lineage))
	}
	for _, record := range lineage {
		if record.SchemaVersion != storage.CurrentSchemaVersion {
			t.Fatalf("lineage record not stamped: %+v", record)
		}
	}
}

func TestCalibrateMatrixEvaluatorWithCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCalibrator(Config{Store: storage.NewMemoryStore(), Metrics: telemetry.NewCollectors(reg)})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	req := smallRequest(t)
	req.Metrics = []model.Metric{model.MetricRevenue, model.MetricCustomerSatisfaction}
	req.GA.Evaluator = "matrix"
	req.GA.CacheSize = 64
	req.GA.Selection = "tournament"
	req.GA.Crossover = "uniform"
	req.Workers = 2

	var mu sync.Mutex
	observed := map[model.Metric]int{}
	req.Observer = func(diag model.GenerationDiagnostics) {
		mu.Lock()
		observed[diag.Metric]++
		mu.Unlock()
	}

	report, err := c.Calibrate(context.Background(), req)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}
	for _, metric := range req.Metrics {
		if observed[metric] != 4 {
			t.Fatalf("%s: observed %d generations, want 4", metric, observed[metric])
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	generations := 0.0
	for _, family := range families {
		if family.GetName() != "kcbalance_generations_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			generations += m.GetCounter().GetValue()
		}
	}
	if generations != 8 {
		t.Fatalf("expected 8 generations counted, got %v", generations)
	}
}

func TestCalibrateRejectsInvalidRequests(t *testing.T) {
	c := newTestCalibrator(t, storage.NewMemoryStore())
	cases := []struct {
		name   string
		mutate func(*CalibrationRequest)
	}{
		{"no metrics", func(r *CalibrationRequest) { r.Metrics = nil }},
		{"duplicate metric", func(r *CalibrationRequest) {
			r.Metrics = []model.Metric{model.MetricRevenue, model.MetricRevenue}
		}},
		{"missing ranges", func(r *CalibrationRequest) { r.Metrics = []model.Metric{"Luck"} }},
		{"no players", func(r *CalibrationRequest) { r.Simulation.Players = 0 }},
		{"unknown evaluator", func(r *CalibrationRequest) { r.GA.Evaluator = "gpu" }},
		{"unknown selection", func(r *CalibrationRequest) { r.GA.Selection = "roulette" }},
		{"unknown crossover", func(r *CalibrationRequest) { r.GA.Crossover = "blend" }},
		{"tiny population", func(r *CalibrationRequest) { r.GA.PopulationSize = 3; r.GA.EliteCount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := smallRequest(t)
			tc.mutate(&req)
			_, err := c.Calibrate(context.Background(), req)
			if !errors.Is(err, evo.ErrInvalidConfig) {
				t.Fatalf("expected invalid config error, got %v", err)
			}
		})
	}
}

func TestCalibrateHonorsCancellation(t *testing.T) {
	c := newTestCalibrator(t, storage.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Calibrate(ctx, smallRequest(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRequestFromConfigMapsDefaults(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	req, err := RequestFromConfig(cfg)
	if err != nil {
		t.Fatalf("request from config: %v", err)
	}
	if req.Seed != 42 || req.Simulation.Players != 2000 || req.GA.PopulationSize != 100 {
		t.Fatalf("unexpected request: seed=%d players=%d pop=%d", req.Seed, req.Simulation.Players, req.GA.PopulationSize)
	}
	if req.Targets != (fitness.Targets{0, 0.65, 0.85}) {
		t.Fatalf("unexpected targets: %v", req.Targets)
	}
	if req.Catalog.Len() != 15 {
		t.Fatalf("expected 15 kcs, got %d", req.Catalog.Len())
	}
	req.Ranges[model.MetricRevenue] = model.MetricRanges{}
	if cfg.Ranges[model.MetricRevenue].Goal.Max != 15000 {
		t.Fatal("request shares ranges with config")
	}
}
