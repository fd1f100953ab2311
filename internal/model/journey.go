package model

// KCTotals maps a KC id to its cumulative score. Unseen KCs read as zero.
type KCTotals map[string]float64

func (t KCTotals) Get(kc string) float64 {
	return t[kc]
}

func (t KCTotals) Add(kc string, delta float64) {
	t[kc] += delta
}

func (t KCTotals) Clone() KCTotals {
	out := make(KCTotals, len(t))
	for kc, v := range t {
		out[kc] = v
	}
	return out
}

// Journey holds one player's cumulative KC totals at the end of each chapter.
type Journey []KCTotals
