package model

import "fmt"

// KCEntry lists the metrics one knowledge component feeds.
type KCEntry struct {
	ID      string   `json:"id" yaml:"id"`
	Metrics []Metric `json:"metrics" yaml:"metrics"`
}

// Catalog is the immutable KC to metric mapping of a calibration session.
type Catalog struct {
	entries []KCEntry
	index   map[string]int
}

func NewCatalog(entries []KCEntry) (Catalog, error) {
	if len(entries) == 0 {
		return Catalog{}, fmt.Errorf("catalog requires at least one kc")
	}
	out := Catalog{
		entries: make([]KCEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, entry := range entries {
		if entry.ID == "" {
			return Catalog{}, fmt.Errorf("kc id is required at index %d", i)
		}
		if _, dup := out.index[entry.ID]; dup {
			return Catalog{}, fmt.Errorf("duplicate kc id %q", entry.ID)
		}
		out.index[entry.ID] = len(out.entries)
		out.entries = append(out.entries, KCEntry{
			ID:      entry.ID,
			Metrics: append([]Metric(nil), entry.Metrics...),
		})
	}
	return out, nil
}

func (c Catalog) Len() int {
	return len(c.entries)
}

func (c Catalog) IDs() []string {
	out := make([]string, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry.ID)
	}
	return out
}

func (c Catalog) KCsFor(metric Metric) []string {
	out := make([]string, 0, len(c.entries))
	for _, entry := range c.entries {
		for _, m := range entry.Metrics {
			if m == metric {
				out = append(out, entry.ID)
				break
			}
		}
	}
	return out
}

func (c Catalog) Entries() []KCEntry {
	out := make([]KCEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, KCEntry{ID: entry.ID, Metrics: append([]Metric(nil), entry.Metrics...)})
	}
	return out
}

func (c Catalog) Has(kc string) bool {
	_, ok := c.index[kc]
	return ok
}
