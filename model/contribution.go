package model

import (
	"strings"

	U "mcf/util"
)

// Two contribution policies are in circulation for the same metric
// and produce materially different numbers. Which one a tenant wants
// is configuration, not a guess; both stay implemented.
const (
	// ContributionPolicyAllEntries counts every valid history entry
	// in the denominator, the first recorded value included. This is
	// the canonical policy.
	ContributionPolicyAllEntries = "all_entries"
	// ContributionPolicyTransitions treats the first entry as a
	// baseline and counts only entries from index 1 onward.
	ContributionPolicyTransitions = "transitions_only"
)

func IsValidContributionPolicy(policy string) bool {
	return policy == ContributionPolicyAllEntries ||
		policy == ContributionPolicyTransitions
}

// ContributionScore is the marketing contribution of one contact's
// attribute history against a marketing-source set.
type ContributionScore struct {
	Percent        float64 `json:"percent"`
	TotalCount     int     `json:"total_count"`
	MarketingCount int     `json:"marketing_count"`
}

// ScoreContribution computes the fraction of history entries whose
// value belongs to marketingSet. The set keys must be normalized
// (trimmed, upper-cased) the same way NormalizeHistory normalizes
// values. An empty history scores exactly 0 with TotalCount 0.
// Percent is rounded to 4 decimal places.
func ScoreContribution(sequence []HistoryEntry, marketingSet map[string]bool,
	policy string) ContributionScore {

	start := 0
	if policy == ContributionPolicyTransitions {
		start = 1
	}

	score := ContributionScore{}
	for i := start; i < len(sequence); i++ {
		score.TotalCount++
		if marketingSet[sequence[i].Value] {
			score.MarketingCount++
		}
	}

	if score.TotalCount == 0 {
		return score
	}

	score.Percent = U.RoundToFourDecimals(
		float64(score.MarketingCount) / float64(score.TotalCount))
	return score
}

// BuildMarketingSet normalizes a configured list of marketing source
// values into a membership set.
func BuildMarketingSet(sources []string) map[string]bool {
	set := make(map[string]bool, len(sources))
	for i := range sources {
		value := strings.ToUpper(strings.TrimSpace(sources[i]))
		if value == "" {
			continue
		}
		set[value] = true
	}

	return set
}
