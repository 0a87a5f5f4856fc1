package qualification

import (
	"math"
	"strings"
)

// Threshold is the single qualification cut-off on the [0,1] score scale.
// Every component that turns a score into a decision goes through IsQualified.
const Threshold = 0.5

// Score bounds.
const (
	MinScore = 0.10
	MaxScore = 1.0
)

// Fallback scores written when a contact cannot be scored normally.
const (
	FallbackNoDomainScore = 0.2
	FallbackErrorScore    = 0.3
)

// ConfidenceLevel is the bucketed confidence of a qualification decision.
type ConfidenceLevel string

// Confidence buckets, lowest first.
const (
	ConfidenceLow       ConfidenceLevel = "LOW"
	ConfidenceUncertain ConfidenceLevel = "UNCERTAIN"
	ConfidenceConfident ConfidenceLevel = "CONFIDENT"
	ConfidenceHigh      ConfidenceLevel = "HIGH"
)

// IsQualified applies the qualification threshold.
func IsQualified(score float64) bool {
	return score >= Threshold
}

// ConfidenceFor buckets a confidence value in [0,1].
func ConfidenceFor(value float64) ConfidenceLevel {
	switch {
	case value > 0.8:
		return ConfidenceHigh
	case value > 0.6:
		return ConfidenceConfident
	case value > 0.4:
		return ConfidenceUncertain
	default:
		return ConfidenceLow
	}
}

// ParseConfidence accepts a bucket name in any case.
func ParseConfidence(s string) (ConfidenceLevel, bool) {
	c := ConfidenceLevel(strings.ToUpper(strings.TrimSpace(s)))
	if c.Valid() {
		return c, true
	}
	return ConfidenceLow, false
}

// Valid reports whether c is one of the four buckets.
func (c ConfidenceLevel) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceUncertain, ConfidenceConfident, ConfidenceHigh:
		return true
	}
	return false
}

// Decision is a normalised score with its derived decision.
type Decision struct {
	Score      float64
	Qualified  bool
	Confidence ConfidenceLevel
}

// Decide normalises a score reported by any source: NaN becomes the minimum,
// the score is clamped to [0,1], the decision is re-derived from the threshold
// and unknown confidence labels become LOW.
func Decide(score float64, confidence string) Decision {
	if math.IsNaN(score) {
		score = MinScore
	}
	score = clamp(score, 0, MaxScore)
	level, _ := ParseConfidence(confidence)
	return Decision{
		Score:      score,
		Qualified:  IsQualified(score),
		Confidence: level,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
