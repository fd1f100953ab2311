package model

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint identifies a candidate by its metric, goal and weights. Values are
// encoded bit-exactly so equal fingerprints imply equal fitness.
func Fingerprint(c Candidate) string {
	parts := make([]string, 0, len(c.Weights)+2)
	parts = append(parts, "m="+string(c.Metric))
	parts = append(parts, "g="+strconv.FormatFloat(c.Goal, 'g', -1, 64))
	for _, kc := range c.SortedKCs() {
		parts = append(parts, kc+"="+strconv.FormatFloat(c.Weights[kc], 'g', -1, 64))
	}
	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(digest[:])
}
