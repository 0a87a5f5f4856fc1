package app

import (
	"strings"

	"leadscore-backtest/crm"
	"leadscore-backtest/database"
)

// NoOpportunityStage is recorded when an account has no opportunities.
const NoOpportunityStage = "No Opportunity"

// Stage name fragments. Matching is by substring so that "Prospecting" counts
// as early and "Closed-Won" as advanced.
var (
	advancedStageKeywords = []string{
		"demo", "proposal", "evaluation", "negotiation", "contract",
		"closed won", "closed lost", "technical", "poc", "trial",
		"proof of concept", "decision", "purchase", "implementation",
	}
	earlyStageKeywords = []string{
		"lead", "prospect", "qualification", "initial", "discovery",
		"cold", "unqualified", "inquiry", "marketing", "nurture",
	}
)

// ClassifyStage reports whether a stage name is beyond stage one, and why.
// Advanced keywords win over early ones. A name matching neither set is
// treated as advanced: custom stage names in this CRM usually denote
// progression. An empty name is early.
func ClassifyStage(stage string) (beyond bool, basis string) {
	s := normalizeStage(stage)
	if s == "" {
		return false, database.StageBasisEmptyStage
	}
	for _, k := range advancedStageKeywords {
		if strings.Contains(s, k) {
			return true, database.StageBasisAdvancedKeyword
		}
	}
	for _, k := range earlyStageKeywords {
		if strings.Contains(s, k) {
			return false, database.StageBasisEarlyKeyword
		}
	}
	return true, database.StageBasisDefaultAdvanced
}

// BestOpportunity returns the first advanced opportunity of a newest-first
// list, or the newest one when none is advanced. opps must not be empty.
func BestOpportunity(opps []crm.Opportunity) crm.Opportunity {
	for _, o := range opps {
		if beyond, _ := ClassifyStage(o.StageName); beyond {
			return o
		}
	}
	return opps[0]
}

func normalizeStage(stage string) string {
	s := strings.ToLower(stage)
	s = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
