package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"kcbalance/internal/journey"
	"kcbalance/internal/model"
)

const (
	runIndexFile       = "run_index.json"
	fitnessHistoryFile = "fitness_history.csv"
	reportFile         = "report.txt"
	lineageFile        = "lineage.json"
	diagnosticsFile    = "generation_diagnostics.json"
	journeySummaryFile = "journey_summary.json"
	configFile         = "config.json"
	resultsFile        = "results.json"
)

type RunConfig struct {
	RunID               string                  `json:"run_id"`
	Seed                int64                   `json:"seed"`
	Metrics             []model.Metric          `json:"metrics"`
	Targets             [model.Chapters]float64 `json:"targets"`
	Players             int                     `json:"players"`
	Chapters            int                     `json:"chapters"`
	DecisionsPerChapter int                     `json:"decisions_per_chapter"`
	PoolSize            int                     `json:"pool_size"`
	PopulationSize      int                     `json:"population_size"`
	Generations         int                     `json:"generations"`
	MutationRate        float64                 `json:"mutation_rate"`
	MutationStrength    float64                 `json:"mutation_strength"`
	EliteCount          int                     `json:"elite_count"`
	Workers             int                     `json:"workers"`
	EvalWorkers         int                     `json:"eval_workers"`
	Selection           string                  `json:"selection"`
	Crossover           string                  `json:"crossover"`
	Evaluator           string                  `json:"evaluator"`
	CacheSize           int                     `json:"cache_size,omitempty"`
}

type RunArtifacts struct {
	Config         RunConfig                              `json:"config"`
	Results        []model.MetricResult                   `json:"results"`
	JourneySummary []journey.ChapterSummary               `json:"journey_summary,omitempty"`
	Lineage        map[model.Metric][]model.LineageRecord `json:"lineage,omitempty"`
	Report         string                                 `json:"-"`
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Seed           int64   `json:"seed"`
	Players        int     `json:"players"`
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	Workers        int     `json:"workers"`
	Metrics        int     `json:"metrics"`
	TotalError     float64 `json:"total_error"`
	WorstMetric    string  `json:"worst_metric,omitempty"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

// FitnessPoint is one row of fitness_history.csv.
type FitnessPoint struct {
	Generation int
	Metric     model.Metric
	BestError  float64
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, resultsFile), artifacts.Results); err != nil {
		return "", err
	}
	if err := WriteFitnessHistory(runDir, artifacts.Results); err != nil {
		return "", err
	}
	diagnostics := make(map[model.Metric][]model.GenerationDiagnostics, len(artifacts.Results))
	for _, result := range artifacts.Results {
		diagnostics[result.Metric] = result.Diagnostics
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), diagnostics); err != nil {
		return "", err
	}
	if len(artifacts.JourneySummary) > 0 {
		if err := writeJSON(filepath.Join(runDir, journeySummaryFile), artifacts.JourneySummary); err != nil {
			return "", err
		}
	}
	if len(artifacts.Lineage) > 0 {
		if err := writeJSON(filepath.Join(runDir, lineageFile), artifacts.Lineage); err != nil {
			return "", err
		}
	}
	if artifacts.Report != "" {
		if err := os.WriteFile(filepath.Join(runDir, reportFile), []byte(artifacts.Report), 0o644); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func IndexEntryFor(cfg RunConfig, results []model.MetricResult, createdAtUTC string) RunIndexEntry {
	entry := RunIndexEntry{
		RunID:          cfg.RunID,
		Seed:           cfg.Seed,
		Players:        cfg.Players,
		PopulationSize: cfg.PopulationSize,
		Generations:    cfg.Generations,
		Workers:        cfg.Workers,
		Metrics:        len(results),
		CreatedAtUTC:   createdAtUTC,
	}
	worst := -1.0
	for _, result := range results {
		entry.TotalError += result.Error
		if result.Error > worst {
			worst = result.Error
			entry.WorstMetric = string(result.Metric)
		}
	}
	return entry
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, newest first. Entries with equal
// timestamps keep reverse append order.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry   RunIndexEntry
		created time.Time
		idx     int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], created: parseIndexTime(entries[i].CreatedAtUTC), idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].created.Equal(indexed[j].created) {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].created.After(indexed[j].created)
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Unparseable timestamps sort as the oldest entries.
func parseIndexTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, resultsFile, fitnessHistoryFile, diagnosticsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{journeySummaryFile, lineageFile, reportFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func ReadResults(baseDir, runID string) ([]model.MetricResult, bool, error) {
	var results []model.MetricResult
	ok, err := readJSON(filepath.Join(baseDir, runID, resultsFile), &results)
	if err != nil || !ok {
		return nil, ok, err
	}
	return results, true, nil
}

func ReadReport(baseDir, runID string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, reportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// WriteFitnessHistory writes the best-ever error of every metric per
// generation as CSV rows of (generation, metric, best_error).
func WriteFitnessHistory(runDir string, results []model.MetricResult) error {
	path := filepath.Join(runDir, fitnessHistoryFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "metric", "best_error"}); err != nil {
		return err
	}
	for _, result := range results {
		for i, best := range result.BestByGeneration {
			if err := writer.Write([]string{
				strconv.Itoa(i + 1),
				string(result.Metric),
				strconv.FormatFloat(best, 'f', -1, 64),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessHistory(baseDir, runID string) ([]FitnessPoint, bool, error) {
	path := filepath.Join(baseDir, runID, fitnessHistoryFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []FitnessPoint{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 3 {
		return nil, false, fmt.Errorf("fitness history header must have 3 columns")
	}

	points := make([]FitnessPoint, 0, 256)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 3 {
			return nil, false, fmt.Errorf("fitness history row must have 3 columns")
		}
		generation, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		best, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, false, err
		}
		points = append(points, FitnessPoint{
			Generation: generation,
			Metric:     model.Metric(strings.TrimSpace(record[1])),
			BestError:  best,
		})
	}
	return points, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
