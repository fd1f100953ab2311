package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"kcbalance/internal/model"
)

// Report is the input of the console summary printed after a calibration.
type Report struct {
	RunID       string
	Players     int
	Evaluations int
	Targets     [model.Chapters]float64
	Results     []model.MetricResult
	Duration    time.Duration
}

const ruleWidth = 70

// FormatReport renders the learned goals and weights per metric, with weights
// listed in KC order.
func FormatReport(r Report) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	b.WriteString("      LEARNED GAME BALANCE PARAMETERS VIA GENETIC ALGORITHM\n")
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(&b, "Players simulated: %s\n", humanize.Comma(int64(r.Players)))
	if r.Evaluations > 0 {
		fmt.Fprintf(&b, "Fitness evaluations: %s\n", humanize.Comma(int64(r.Evaluations)))
	}
	if r.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "Target Win %% by end of Chap 1/2/3: %s\n\n", formatPercents(r.Targets))

	for _, result := range r.Results {
		fmt.Fprintf(&b, "--- %s ---\n", result.Metric)
		fmt.Fprintf(&b, "  Learned Win-Condition Goal: %.2f\n", result.Candidate.Goal)
		b.WriteString("  Learned KC Weights:\n")
		kcs := result.Candidate.SortedKCs()
		if len(kcs) == 0 {
			b.WriteString("    (no mapped KCs)\n")
		}
		for _, kc := range kcs {
			fmt.Fprintf(&b, "    - %s: %.2f\n", kc, result.Candidate.Weights[kc])
		}
		fmt.Fprintf(&b, "\n  Resulting Win %% by end of Chap 1/2/3: %s\n", formatPercents(result.WinFractions))
		fmt.Fprintf(&b, "  Final Error Score: %.5f\n", result.Error)
		b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	}
	return b.String()
}

func formatPercents(fractions [model.Chapters]float64) string {
	parts := make([]string, 0, len(fractions))
	for _, f := range fractions {
		parts = append(parts, fmt.Sprintf("%.1f%%", f*100))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func FormatRunIndex(entries []RunIndexEntry) string {
	if len(entries) == 0 {
		return "no runs recorded\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-20s  %8s  %10s  %6s  %12s\n", "RUN ID", "CREATED (UTC)", "SEED", "PLAYERS", "GENS", "TOTAL ERROR")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s  %-20s  %8d  %10s  %6d  %12.5f\n",
			e.RunID, e.CreatedAtUTC, e.Seed, humanize.Comma(int64(e.Players)), e.Generations, e.TotalError)
	}
	return b.String()
}
