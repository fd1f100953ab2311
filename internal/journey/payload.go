package journey

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	scoreLow  = -1.0
	scoreHigh = 1.0
	scoreMode = 0.6
)

// payloadSizeWeights gives the relative odds of a decision touching 1, 2 or 3 KCs.
var payloadSizeWeights = []float64{0.4, 0.5, 0.1}

// Contribution is one KC score produced by a decision.
type Contribution struct {
	KC    string
	Score float64
}

// Payload is the effect of one simulated decision.
type Payload []Contribution

func NewPayloadPool(rng *rand.Rand, kcIDs []string, size int) ([]Payload, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(kcIDs) == 0 {
		return nil, fmt.Errorf("payload pool requires at least one kc")
	}
	if size <= 0 {
		return nil, fmt.Errorf("payload pool size must be > 0")
	}
	pool := make([]Payload, 0, size)
	for i := 0; i < size; i++ {
		pool = append(pool, NewPayload(rng, kcIDs))
	}
	return pool, nil
}

func NewPayload(rng *rand.Rand, kcIDs []string) Payload {
	count := pickPayloadSize(rng)
	if count > len(kcIDs) {
		count = len(kcIDs)
	}
	picked := rng.Perm(len(kcIDs))[:count]
	payload := make(Payload, 0, count)
	for _, idx := range picked {
		score := Triangular(rng, scoreLow, scoreHigh, scoreMode)
		payload = append(payload, Contribution{
			KC:    kcIDs[idx],
			Score: math.Round(score*100) / 100,
		})
	}
	return payload
}

func pickPayloadSize(rng *rand.Rand) int {
	total := 0.0
	for _, w := range payloadSizeWeights {
		total += w
	}
	pick := rng.Float64() * total
	acc := 0.0
	for i, w := range payloadSizeWeights {
		acc += w
		if pick < acc {
			return i + 1
		}
	}
	return len(payloadSizeWeights)
}

// Triangular samples the triangular distribution on [low, high] with the given
// mode by inverting its CDF.
func Triangular(rng *rand.Rand, low, high, mode float64) float64 {
	if high <= low {
		return low
	}
	u := rng.Float64()
	split := (mode - low) / (high - low)
	if u < split {
		return low + math.Sqrt(u*(high-low)*(mode-low))
	}
	return high - math.Sqrt((1-u)*(high-low)*(high-mode))
}
