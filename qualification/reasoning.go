package qualification

import (
	"fmt"
	"strings"

	"leadscore-backtest/signals"
)

// MaxReasons bounds the reasoning list.
const MaxReasons = 4

type reasonInputs struct {
	strongest      signals.Feature
	strengthPoints float64

	scale  signals.Feature
	bucket string

	urgency       signals.Features
	urgencyPoints float64
	urgencyLevel  int

	industryKey  string
	industryMult float64
}

// buildReasoning emits one line per dimension that moved the score, in the
// order strength, scale, urgency, industry.
func buildReasoning(in reasonInputs) []string {
	reasons := make([]string, 0, MaxReasons)

	if in.strongest.Weighted > 0 {
		examples := firstN(in.strongest.Matches, 3)
		switch {
		case in.strengthPoints > 80:
			reasons = append(reasons, fmt.Sprintf("Strong %s signals detected: %s", in.strongest.Label, examples))
		case in.strengthPoints > 40:
			reasons = append(reasons, fmt.Sprintf("Moderate %s potential: %s", in.strongest.Label, examples))
		default:
			reasons = append(reasons, fmt.Sprintf("Weak %s signals: %s", in.strongest.Label, examples))
		}
	}

	if in.scale.Count > 0 {
		switch in.bucket {
		case signals.ScaleLarge:
			reasons = append(reasons, fmt.Sprintf("Enterprise-scale business indicators: %s", firstN(in.scale.Matches, 3)))
		case signals.ScaleMedium:
			reasons = append(reasons, fmt.Sprintf("Growing business with scaling potential: %s", firstN(in.scale.Matches, 3)))
		default:
			reasons = append(reasons, fmt.Sprintf("Small business with limited scale: %s", firstN(in.scale.Matches, 3)))
		}
	}

	if in.urgencyPoints > 0 {
		phrases := in.urgency.MatchedPhrases()
		switch {
		case len(phrases) > 0 && in.urgencyPoints >= 60:
			reasons = append(reasons, fmt.Sprintf("High urgency signals: %s", firstN(phrases, 3)))
		case len(phrases) > 0:
			reasons = append(reasons, fmt.Sprintf("Timeline signals: %s", firstN(phrases, 3)))
		default:
			reasons = append(reasons, fmt.Sprintf("Stated urgency level %d of %d", in.urgencyLevel, MaxUrgencyLevel))
		}
	}

	if in.industryKey != "" && in.industryMult != 1.0 {
		if in.industryMult > 1.0 {
			reasons = append(reasons, fmt.Sprintf("High-value industry: %s (%.2gx)", in.industryKey, in.industryMult))
		} else {
			reasons = append(reasons, fmt.Sprintf("Lower-fit industry: %s (%.2gx)", in.industryKey, in.industryMult))
		}
	}

	if len(reasons) == 0 {
		return []string{"No measurable qualification signals detected"}
	}
	return reasons
}

func firstN(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}
