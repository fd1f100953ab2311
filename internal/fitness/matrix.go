package fitness

import (
	"sort"

	"kcbalance/internal/model"
)

// Matrix flattens journeys into a dense player x chapter x KC table once, then
// scores candidates with dot products. It is an independent path to Direct and
// must agree with it.
type Matrix struct {
	columns []string
	colIdx  map[string]int
	players int
	// present[p][c] is false when player p's journey ends before chapter c.
	present [][model.Chapters]bool
	values  []float64
	targets Targets
}

func NewMatrix(journeys []model.Journey, targets Targets) *Matrix {
	seen := map[string]struct{}{}
	for _, journey := range journeys {
		for _, snapshot := range journey {
			for kc := range snapshot {
				seen[kc] = struct{}{}
			}
		}
	}
	columns := make([]string, 0, len(seen))
	for kc := range seen {
		columns = append(columns, kc)
	}
	sort.Strings(columns)
	colIdx := make(map[string]int, len(columns))
	for i, kc := range columns {
		colIdx[kc] = i
	}

	m := &Matrix{
		columns: columns,
		colIdx:  colIdx,
		players: len(journeys),
		present: make([][model.Chapters]bool, len(journeys)),
		values:  make([]float64, len(journeys)*model.Chapters*len(columns)),
		targets: targets,
	}
	for p, journey := range journeys {
		for c := 0; c < model.Chapters && c < len(journey); c++ {
			m.present[p][c] = true
			row := m.row(p, c)
			for kc, v := range journey[c] {
				row[colIdx[kc]] = v
			}
		}
	}
	return m
}

func (*Matrix) Name() string {
	return "matrix"
}

func (m *Matrix) Columns() []string {
	return append([]string(nil), m.columns...)
}

func (m *Matrix) Evaluate(candidate model.Candidate) model.FitnessResult {
	weights := make([]float64, len(m.columns))
	active := make([]int, 0, len(candidate.Weights))
	for kc, w := range candidate.Weights {
		idx, ok := m.colIdx[kc]
		if !ok {
			continue
		}
		weights[idx] = w
		active = append(active, idx)
	}
	sort.Ints(active)

	var wins [model.Chapters]int
	for p := 0; p < m.players; p++ {
		for c := 0; c < model.Chapters; c++ {
			if !m.present[p][c] {
				continue
			}
			row := m.row(p, c)
			total := 0.0
			for _, idx := range active {
				total += row[idx] * weights[idx]
			}
			if total >= candidate.Goal {
				wins[c]++
			}
		}
	}
	return resultFor(wins, m.players, m.targets)
}

func (m *Matrix) row(player, chapter int) []float64 {
	width := len(m.columns)
	start := (player*model.Chapters + chapter) * width
	return m.values[start : start+width]
}
