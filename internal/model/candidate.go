package model

import "sort"

// Candidate is one genome of the search: a goal threshold and per-KC weights
// for a single metric.
type Candidate struct {
	ID      string             `json:"id,omitempty"`
	Metric  Metric             `json:"metric"`
	Goal    float64            `json:"goal"`
	Weights map[string]float64 `json:"weights"`
}

// Clone returns a deep copy; the weights map is never shared.
func (c Candidate) Clone() Candidate {
	out := Candidate{
		ID:      c.ID,
		Metric:  c.Metric,
		Goal:    c.Goal,
		Weights: make(map[string]float64, len(c.Weights)),
	}
	for kc, w := range c.Weights {
		out.Weights[kc] = w
	}
	return out
}

func (c Candidate) SortedKCs() []string {
	keys := make([]string, 0, len(c.Weights))
	for kc := range c.Weights {
		keys = append(keys, kc)
	}
	sort.Strings(keys)
	return keys
}
