package model

// Chapters is the number of journey checkpoints a fitness result reports on.
const Chapters = 3

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Metric names an aggregate game quantity whose goal and KC weights are learned.
type Metric string

const (
	MetricRevenue               Metric = "Revenue"
	MetricCustomerSatisfaction  Metric = "CustomerSatisfaction"
	MetricReputation            Metric = "Reputation"
	MetricEthicalDecisionMaking Metric = "EthicalDecisionMaking"
	MetricRiskTaking            Metric = "RiskTaking"
)

// DefaultMetrics is the metric order used for calibration runs and reports.
var DefaultMetrics = []Metric{
	MetricRevenue,
	MetricCustomerSatisfaction,
	MetricReputation,
	MetricEthicalDecisionMaking,
	MetricRiskTaking,
}

// Range is an inclusive [Min, Max] interval for a gene.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) Width() float64 {
	return r.Max - r.Min
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// MetricRanges holds the search bounds of one metric.
type MetricRanges struct {
	Weight Range `json:"weight" yaml:"weight"`
	Goal   Range `json:"goal" yaml:"goal"`
}

type FitnessResult struct {
	Error        float64           `json:"error"`
	WinFractions [Chapters]float64 `json:"win_fractions"`
}

type GenerationDiagnostics struct {
	Metric       Metric            `json:"metric"`
	Generation   int               `json:"generation"`
	BestError    float64           `json:"best_error"`
	MeanError    float64           `json:"mean_error"`
	WorstError   float64           `json:"worst_error"`
	BestOverall  float64           `json:"best_overall_error"`
	BestWin      [Chapters]float64 `json:"best_win_fractions"`
	Diversity    int               `json:"fingerprint_diversity"`
	Improved     bool              `json:"improved"`
	Evaluations  int               `json:"evaluations"`
	CacheHitRate float64           `json:"cache_hit_rate,omitempty"`
}

type LineageRecord struct {
	VersionedRecord
	CandidateID string   `json:"candidate_id"`
	ParentIDs   []string `json:"parent_ids,omitempty"`
	Metric      Metric   `json:"metric"`
	Generation  int      `json:"generation"`
	Operation   string   `json:"operation"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// MetricResult is the per-metric outcome handed to reporting.
type MetricResult struct {
	Metric           Metric                  `json:"metric"`
	Candidate        Candidate               `json:"candidate"`
	Error            float64                 `json:"error"`
	WinFractions     [Chapters]float64       `json:"win_fractions"`
	BestByGeneration []float64               `json:"best_by_generation"`
	Diagnostics      []GenerationDiagnostics `json:"diagnostics,omitempty"`
}

// CalibrationRecord is the archived summary of one calibration run.
type CalibrationRecord struct {
	VersionedRecord
	RunID        string            `json:"run_id"`
	Seed         int64             `json:"seed"`
	Players      int               `json:"players"`
	Targets      [Chapters]float64 `json:"targets"`
	Results      []MetricResult    `json:"results"`
	CreatedAtUTC string            `json:"created_at_utc"`
}
