package model

import (
	"reflect"
	"testing"
)

func TestCatalogKCsForKeepsCatalogOrder(t *testing.T) {
	catalog, err := NewCatalog([]KCEntry{
		{ID: "KC2", Metrics: []Metric{MetricRevenue, MetricReputation}},
		{ID: "KC4", Metrics: []Metric{MetricRevenue}},
		{ID: "KC5", Metrics: []Metric{MetricReputation}},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	if got := catalog.KCsFor(MetricRevenue); !reflect.DeepEqual(got, []string{"KC2", "KC4"}) {
		t.Fatalf("unexpected revenue kcs: %v", got)
	}
	if got := catalog.KCsFor(MetricReputation); !reflect.DeepEqual(got, []string{"KC2", "KC5"}) {
		t.Fatalf("unexpected reputation kcs: %v", got)
	}
	if got := catalog.KCsFor(MetricRiskTaking); len(got) != 0 {
		t.Fatalf("expected no risk-taking kcs, got %v", got)
	}
	if got := catalog.IDs(); !reflect.DeepEqual(got, []string{"KC2", "KC4", "KC5"}) {
		t.Fatalf("unexpected ids: %v", got)
	}
}

func TestNewCatalogRejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := NewCatalog(nil); err == nil {
		t.Fatal("expected empty catalog error")
	}
	_, err := NewCatalog([]KCEntry{{ID: "KC1"}, {ID: "KC1"}})
	if err == nil {
		t.Fatal("expected duplicate kc error")
	}
}

func TestCatalogEntriesAreCopies(t *testing.T) {
	catalog, err := NewCatalog([]KCEntry{{ID: "KC1", Metrics: []Metric{MetricRevenue}}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	entries := catalog.Entries()
	entries[0].Metrics[0] = MetricRiskTaking
	if got := catalog.KCsFor(MetricRevenue); len(got) != 1 {
		t.Fatalf("catalog mutated through Entries: %v", got)
	}
}

func TestCandidateCloneIsDeep(t *testing.T) {
	original := Candidate{Metric: MetricRevenue, Goal: 10, Weights: map[string]float64{"KC2": 1}}
	clone := original.Clone()
	clone.Weights["KC2"] = 99
	clone.Goal = 20
	if original.Weights["KC2"] != 1 || original.Goal != 10 {
		t.Fatalf("clone aliased original: %+v", original)
	}
}

func TestKCTotalsGetOrZeroAndClone(t *testing.T) {
	totals := KCTotals{}
	if totals.Get("missing") != 0 {
		t.Fatal("expected zero for unseen kc")
	}
	if len(totals) != 0 {
		t.Fatal("Get must not insert keys")
	}
	totals.Add("KC2", 0.5)
	totals.Add("KC2", 0.25)
	snapshot := totals.Clone()
	totals.Add("KC2", 1)
	if snapshot.Get("KC2") != 0.75 {
		t.Fatalf("snapshot changed with source: %v", snapshot.Get("KC2"))
	}
}

func TestRangeClamp(t *testing.T) {
	r := Range{Min: 1, Max: 3}
	cases := map[float64]float64{0: 1, 1: 1, 2.5: 2.5, 3: 3, 9: 3}
	for in, want := range cases {
		if got := r.Clamp(in); got != want {
			t.Fatalf("clamp(%v)=%v want %v", in, got, want)
		}
	}
	if r.Width() != 2 {
		t.Fatalf("unexpected width: %v", r.Width())
	}
}
