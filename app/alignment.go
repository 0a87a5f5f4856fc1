package app

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"leadscore-backtest/crm"
	"leadscore-backtest/helpers"
)

// Alignment weights.
const (
	decisionWeight  = 0.7
	reasoningWeight = 0.3
	overlapPerCheck = 0.2
	aeNotesLimit    = 200
)

// overlapCheck is satisfied when both texts mention the theme.
type overlapCheck struct {
	name  string
	model *regexp.Regexp
	ae    *regexp.Regexp
}

// Alternations cover plurals and common inflections ("APIs", "technologies").
var overlapChecks = []overlapCheck{
	{"technology", wordsRE("technology", "technologies", "technological", "tech"),
		wordsRE("technology", "technologies", "technological", "tech")},
	{"enterprise", wordsRE("enterprises?", "large"), wordsRE("enterprises?", "corporate", "corporations?")},
	{"integration", wordsRE("apis?", "integrations?", "integrate[sd]?"),
		wordsRE("apis?", "integrations?", "integrate[sd]?", "technical")},
	{"voice", wordsRE("voice", "communications?"), wordsRE("voice", "calls?", "calling", "communications?")},
	{"automation", wordsRE("ai", "automation", "automated"), wordsRE("ai", "automation", "automated", "intelligent")},
}

func wordsRE(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
}

// Outcome is the confusion-matrix cell of one analysed contact.
type Outcome string

const (
	TruePositive  Outcome = "TP"
	FalsePositive Outcome = "FP"
	TrueNegative  Outcome = "TN"
	FalseNegative Outcome = "FN"
)

// OutcomeOf compares the model decision with what the deal did.
func OutcomeOf(modelQualified, beyondStageOne bool) Outcome {
	switch {
	case modelQualified && beyondStageOne:
		return TruePositive
	case modelQualified:
		return FalsePositive
	case beyondStageOne:
		return FalseNegative
	default:
		return TrueNegative
	}
}

// ReasoningOverlap returns the themes both texts share and their weight
// (0.2 each, five themes).
func ReasoningOverlap(modelReasoning, aeReasoning string) ([]string, float64) {
	var shared []string
	for _, c := range overlapChecks {
		if c.model.MatchString(modelReasoning) && c.ae.MatchString(aeReasoning) {
			shared = append(shared, c.name)
		}
	}
	return shared, float64(len(shared)) * overlapPerCheck
}

// AlignmentScore is 0.7 x decision match + 0.3 x reasoning overlap, or the
// bare decision match when either reasoning text is empty. Always in [0,1].
func AlignmentScore(modelQualified, beyondStageOne bool, modelReasoning, aeReasoning string) float64 {
	match := 0.0
	if modelQualified == beyondStageOne {
		match = 1.0
	}
	if strings.TrimSpace(modelReasoning) == "" || strings.TrimSpace(aeReasoning) == "" {
		return match
	}
	_, overlap := ReasoningOverlap(modelReasoning, aeReasoning)
	score := decisionWeight*match + reasoningWeight*overlap
	return math.Max(0, math.Min(1, score))
}

// AEReasoning collects what the account executive recorded on an opportunity.
func AEReasoning(o crm.Opportunity) string {
	parts := []string{}
	if o.StageName != "" {
		parts = append(parts, "Stage: "+o.StageName)
	}
	if o.NextStep != "" {
		parts = append(parts, "Next step: "+o.NextStep)
	}
	if o.Description != "" {
		parts = append(parts, "Notes: "+helpers.Truncate(o.Description, aeNotesLimit))
	}
	if o.WinReason != "" {
		parts = append(parts, "Win reason: "+o.WinReason)
	}
	if o.LossReason != "" {
		parts = append(parts, "Loss reason: "+o.LossReason)
	}
	if o.Type != "" {
		parts = append(parts, "Type: "+o.Type)
	}
	return helpers.JoinNonEmpty("; ", parts...)
}

// AnalysisNotes describes the outcome of one contact for the record.
func AnalysisNotes(modelQualified, beyondStageOne bool, alignment float64, shared []string) string {
	var verdict string
	switch OutcomeOf(modelQualified, beyondStageOne) {
	case TruePositive:
		verdict = "Model correctly identified qualified prospect, AE progressed deal"
	case TrueNegative:
		verdict = "Model correctly identified unqualified prospect, no progression"
	case FalsePositive:
		verdict = "Model false positive, qualified but AE did not progress"
	case FalseNegative:
		verdict = "Model false negative, not qualified but AE progressed"
	}
	notes := verdict + fmt.Sprintf("; Alignment score: %.2f", alignment)
	if len(shared) > 0 {
		notes += "; Shared themes: " + strings.Join(shared, ", ")
	}
	return notes
}
