package journey

import (
	"fmt"
	"math"
	"math/rand"

	"kcbalance/internal/model"
)

const DefaultPoolSize = 500

type Config struct {
	Players             int
	Chapters            int
	DecisionsPerChapter int
	PoolSize            int
}

// Simulator generates synthetic player journeys. Its output does not depend on
// any GA parameter and is meant to be computed once per session.
type Simulator struct {
	cfg   Config
	kcIDs []string
}

func NewSimulator(cfg Config, catalog model.Catalog) (*Simulator, error) {
	if cfg.Players <= 0 {
		return nil, fmt.Errorf("players must be > 0")
	}
	if cfg.Chapters <= 0 {
		return nil, fmt.Errorf("chapters must be > 0")
	}
	if cfg.DecisionsPerChapter < 0 {
		return nil, fmt.Errorf("decisions per chapter must be >= 0")
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.PoolSize < 0 {
		return nil, fmt.Errorf("payload pool size must be > 0")
	}
	if catalog.Len() == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	return &Simulator{cfg: cfg, kcIDs: catalog.IDs()}, nil
}

func (s *Simulator) Config() Config {
	return s.cfg
}

// Simulate draws the payload pool and then walks every player through every
// chapter, snapshotting cumulative KC totals at each chapter end.
func (s *Simulator) Simulate(rng *rand.Rand) ([]model.Journey, error) {
	pool, err := NewPayloadPool(rng, s.kcIDs, s.cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	return Replay(rng, pool, s.cfg.Players, s.cfg.Chapters, s.cfg.DecisionsPerChapter), nil
}

func Replay(rng *rand.Rand, pool []Payload, players, chapters, decisionsPerChapter int) []model.Journey {
	journeys := make([]model.Journey, 0, players)
	for p := 0; p < players; p++ {
		totals := model.KCTotals{}
		journey := make(model.Journey, 0, chapters)
		for c := 0; c < chapters; c++ {
			for d := 0; d < decisionsPerChapter; d++ {
				for _, item := range pool[rng.Intn(len(pool))] {
					totals.Add(item.KC, item.Score)
				}
			}
			journey = append(journey, totals.Clone())
		}
		journeys = append(journeys, journey)
	}
	return journeys
}

type ChapterSummary struct {
	Chapter    int     `json:"chapter"`
	MeanTotal  float64 `json:"mean_total"`
	MinTotal   float64 `json:"min_total"`
	MaxTotal   float64 `json:"max_total"`
	MeanKCs    float64 `json:"mean_kcs"`
	MeanPerKC  float64 `json:"mean_per_kc"`
	TouchedKCs int     `json:"touched_kcs"`
}

func Summarize(journeys []model.Journey) []ChapterSummary {
	if len(journeys) == 0 {
		return nil
	}
	chapters := 0
	for _, j := range journeys {
		if len(j) > chapters {
			chapters = len(j)
		}
	}

	out := make([]ChapterSummary, 0, chapters)
	for c := 0; c < chapters; c++ {
		summary := ChapterSummary{Chapter: c + 1, MinTotal: math.Inf(1), MaxTotal: math.Inf(-1)}
		touched := map[string]struct{}{}
		players := 0
		sumKCs := 0
		sumValues := 0.0
		for _, j := range journeys {
			if c >= len(j) {
				continue
			}
			players++
			total := 0.0
			for kc, v := range j[c] {
				total += v
				touched[kc] = struct{}{}
			}
			sumKCs += len(j[c])
			sumValues += total
			summary.MinTotal = math.Min(summary.MinTotal, total)
			summary.MaxTotal = math.Max(summary.MaxTotal, total)
		}
		if players > 0 {
			summary.MeanTotal = sumValues / float64(players)
			summary.MeanKCs = float64(sumKCs) / float64(players)
		}
		if sumKCs > 0 {
			summary.MeanPerKC = sumValues / float64(sumKCs)
		}
		summary.TouchedKCs = len(touched)
		out = append(out, summary)
	}
	return out
}
