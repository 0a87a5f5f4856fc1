package qualification

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQualified(t *testing.T) {
	assert.True(t, IsQualified(Threshold))
	assert.True(t, IsQualified(0.9))
	assert.False(t, IsQualified(0.4999))
	assert.False(t, IsQualified(FallbackErrorScore))
	assert.False(t, IsQualified(FallbackNoDomainScore))
}

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		value float64
		want  ConfidenceLevel
	}{
		{0, ConfidenceLow},
		{0.4, ConfidenceLow},
		{0.41, ConfidenceUncertain},
		{0.6, ConfidenceUncertain},
		{0.61, ConfidenceConfident},
		{0.8, ConfidenceConfident},
		{0.81, ConfidenceHigh},
		{1, ConfidenceHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.value), "value %v", tt.value)
	}
}

func TestParseConfidence(t *testing.T) {
	c, ok := ParseConfidence(" confident ")
	assert.True(t, ok)
	assert.Equal(t, ConfidenceConfident, c)

	c, ok = ParseConfidence("ERROR")
	assert.False(t, ok)
	assert.Equal(t, ConfidenceLow, c)

	assert.False(t, ConfidenceLevel("high").Valid())
	assert.True(t, ConfidenceHigh.Valid())
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		confidence string
		want       Decision
	}{
		{"qualified", 0.72, "HIGH", Decision{0.72, true, ConfidenceHigh}},
		{"threshold", 0.5, "uncertain", Decision{0.5, true, ConfidenceUncertain}},
		{"below", 0.49, "CONFIDENT", Decision{0.49, false, ConfidenceConfident}},
		{"above range", 1.7, "HIGH", Decision{1.0, true, ConfidenceHigh}},
		{"negative", -0.2, "LOW", Decision{0, false, ConfidenceLow}},
		{"unknown label", 0.3, "ERROR", Decision{0.3, false, ConfidenceLow}},
		{"nan", math.NaN(), "", Decision{MinScore, false, ConfidenceLow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.score, tt.confidence))
		})
	}
}
