package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kcbalance/internal/config"
	"kcbalance/internal/logging"
	"kcbalance/internal/model"
	"kcbalance/internal/stats"
	"kcbalance/internal/telemetry"
	kcapi "kcbalance/pkg/kcbalance"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	session := addSessionFlags(fs)
	runID := fs.String("run-id", "", "explicit run id (optional)")
	seed := fs.Int64("seed", 0, "rng seed (default from config)")
	players := fs.Int("players", 0, "simulated players")
	decisions := fs.Int("decisions", 0, "decisions per chapter")
	poolSize := fs.Int("pool-size", 0, "payload pool size")
	generations := fs.Int("generations", 0, "generations per metric")
	population := fs.Int("population", 0, "population size")
	elite := fs.Int("elite", 0, "elite count carried over unchanged")
	mutationRate := fs.Float64("mutation-rate", 0, "per-gene mutation probability")
	mutationStrength := fs.Float64("mutation-strength", 0, "mutation delta as a fraction of range width")
	workers := fs.Int("workers", 0, "metrics optimized concurrently")
	evalWorkers := fs.Int("eval-workers", 0, "fitness evaluation workers per metric")
	metrics := fs.String("metrics", "", "comma-separated metrics to calibrate (default all configured)")
	selection := fs.String("selection", "", "parent selection: uniform_pair|tournament")
	crossover := fs.String("crossover", "", "crossover: arithmetic|uniform")
	evaluator := fs.String("evaluator", "", "fitness evaluator: direct|matrix")
	cacheSize := fs.Int("cache-size", 0, "fitness cache entries per metric (0 disables)")
	lineage := fs.Bool("lineage", false, "record candidate lineage")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus /metrics on this address during the run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := session.values()
	for name, v := range map[string]any{
		"seed":              *seed,
		"players":           *players,
		"decisions":         *decisions,
		"pool-size":         *poolSize,
		"generations":       *generations,
		"population":        *population,
		"elite":             *elite,
		"mutation-rate":     *mutationRate,
		"mutation-strength": *mutationStrength,
		"workers":           *workers,
		"eval-workers":      *evalWorkers,
		"metrics":           *metrics,
		"selection":         *selection,
		"crossover":         *crossover,
		"evaluator":         *evaluator,
		"cache-size":        *cacheSize,
		"lineage":           *lineage,
	} {
		values[name] = v
	}
	cfg, err := loadSession(*session.configPath, setFlagsOf(fs), values)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	var registry *prometheus.Registry
	if *metricsAddr != "" {
		registry = prometheus.NewRegistry()
		srv, err := telemetry.Start(*metricsAddr, registry, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := newClient(cfg, *session.artifacts, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, kcapi.RunRequest{Config: cfg, RunID: *runID})
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, summary.Report)
	fmt.Fprintf(stdout, "run completed run_id=%s artifacts=%s\n", summary.RunID, summary.ArtifactsDir)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config path overlaid on built-in defaults")
	seed := fs.Int64("seed", 0, "rng seed (default from config)")
	players := fs.Int("players", 0, "simulated players")
	decisions := fs.Int("decisions", 0, "decisions per chapter")
	poolSize := fs.Int("pool-size", 0, "payload pool size")
	jsonOut := fs.Bool("json", false, "emit chapter summaries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadSession(*configPath, setFlagsOf(fs), map[string]any{
		"seed":      *seed,
		"players":   *players,
		"decisions": *decisions,
		"pool-size": *poolSize,
	})
	if err != nil {
		return err
	}
	cfg.Storage.Kind = "memory"

	client, err := newClient(cfg, artifactsDir, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Simulate(ctx, kcapi.SimulateRequest{Config: cfg})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary.Chapters)
	}
	fmt.Fprintf(stdout, "simulated players=%d seed=%d\n", summary.Players, cfg.Seed)
	for _, chapter := range summary.Chapters {
		fmt.Fprintf(stdout, "chapter=%d mean_total=%.3f min_total=%.3f max_total=%.3f mean_kcs=%.2f touched_kcs=%d\n",
			chapter.Chapter, chapter.MeanTotal, chapter.MinTotal, chapter.MaxTotal, chapter.MeanKCs, chapter.TouchedKCs)
	}
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	artifacts := fs.String("artifacts", artifactsDir, "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(*artifacts)
	if err != nil {
		return err
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		return writeJSON(entries)
	}
	fmt.Fprint(stdout, stats.FormatRunIndex(entries))
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	session := addSessionFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	jsonOut := fs.Bool("json", false, "emit the calibration record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("show requires --run-id or --latest")
	}

	client, err := openClient(fs, session)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	shown, err := client.Show(ctx, kcapi.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(shown.Record)
	}
	if shown.Report != "" {
		fmt.Fprint(stdout, shown.Report)
		return nil
	}
	fmt.Fprint(stdout, stats.FormatReport(stats.Report{
		RunID:   shown.Record.RunID,
		Players: shown.Record.Players,
		Targets: shown.Record.Targets,
		Results: shown.Record.Results,
	}))
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	session := addSessionFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run from run index")
	metric := fs.String("metric", "", "metric name")
	limit := fs.Int("limit", 0, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(fs, session)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, kcapi.SeriesRequest{
		RunID:  *runID,
		Latest: *latest,
		Metric: model.Metric(*metric),
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(history)
	}
	for i, best := range history {
		fmt.Fprintf(stdout, "generation=%d best_error=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	session := addSessionFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show diagnostics for the most recent run from run index")
	metric := fs.String("metric", "", "metric name")
	limit := fs.Int("limit", 0, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(fs, session)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, kcapi.SeriesRequest{
		RunID:  *runID,
		Latest: *latest,
		Metric: model.Metric(*metric),
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Fprintf(stdout, "generation=%d best=%.6f mean=%.6f worst=%.6f best_overall=%.6f diversity=%d improved=%t\n",
			d.Generation, d.BestError, d.MeanError, d.WorstError, d.BestOverall, d.Diversity, d.Improved)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	artifacts := fs.String("artifacts", artifactsDir, "run artifacts directory")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := kcapi.New(kcapi.Options{
		StoreKind:    "memory",
		ArtifactsDir: *artifacts,
		ExportsDir:   *outDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, kcapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config path overlaid on built-in defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

func openClient(fs *flag.FlagSet, session *sessionFlags) (*kcapi.Client, error) {
	cfg, err := loadSession(*session.configPath, setFlagsOf(fs), session.values())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, *session.artifacts, logger, nil)
}

func newClient(cfg config.Config, artifacts string, logger *zap.Logger, registry *prometheus.Registry) (*kcapi.Client, error) {
	opts := kcapi.Options{
		StoreKind:    cfg.Storage.Kind,
		DBPath:       cfg.Storage.DBPath,
		ArtifactsDir: artifacts,
		ExportsDir:   exportsDir,
		Logger:       logger,
	}
	if registry != nil {
		opts.Registerer = registry
	}
	return kcapi.New(opts)
}

func writeJSON(value any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: kcbalancectl <run|simulate|runs|show|fitness|diagnostics|export|config> [flags]", msg)
}
