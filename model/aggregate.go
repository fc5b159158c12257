package model

import (
	"math"
	"sort"
)

// AggregatedPath accumulates conversions sharing one PathKey during a
// run. Mutated additively while the run is in flight, finalized into
// an AggregatedPathSummary at run completion.
type AggregatedPath struct {
	Path        Path
	Conversions int
	TotalValue  float64
	Currencies  map[string]bool
}

// AggregatedPathSummary is the read-only report row for one path.
type AggregatedPathSummary struct {
	Path        []string `json:"path"`
	Key         string   `json:"key"`
	Conversions int      `json:"conversions"`
	TotalValue  float64  `json:"total_value"`
	Currencies  []string `json:"currencies,omitempty"`
}

// PathBucket aggregates paths across contacts, keyed by PathKey.
type PathBucket map[string]*AggregatedPath

// Add accumulates one conversion into the bucket. Values sum with no
// currency conversion; currencies union into a set per path.
func (b PathBucket) Add(path Path, event ConversionEvent) {
	key := path.Key()
	aggregated, exists := b[key]
	if !exists {
		aggregated = &AggregatedPath{
			Path:       path,
			Currencies: make(map[string]bool),
		}
		b[key] = aggregated
	}

	aggregated.Conversions++
	aggregated.TotalValue += event.Value
	if event.Currency != "" {
		aggregated.Currencies[event.Currency] = true
	}
}

// Finalize converts the bucket into summary rows. Rows are ordered by
// key so the result is a pure function of the accumulated multiset,
// independent of the order conversions were processed in.
func (b PathBucket) Finalize() []AggregatedPathSummary {
	summaries := make([]AggregatedPathSummary, 0, len(b))
	for key, aggregated := range b {
		currencies := make([]string, 0, len(aggregated.Currencies))
		for currency := range aggregated.Currencies {
			currencies = append(currencies, currency)
		}
		sort.Strings(currencies)

		summaries = append(summaries, AggregatedPathSummary{
			Path:        aggregated.Path,
			Key:         key,
			Conversions: aggregated.Conversions,
			TotalValue:  aggregated.TotalValue,
			Currencies:  currencies,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Key < summaries[j].Key
	})

	return summaries
}

// ComputeThresholdCount returns the minimum occurrence count a path
// needs to stay in the report. The floor of 1 keeps the cutoff
// non-degenerate even at zero conversions.
func ComputeThresholdCount(totalConversions int, thresholdPct float64) int {
	count := int(math.Ceil(float64(totalConversions) * thresholdPct / 100))
	if count < 1 {
		return 1
	}
	return count
}

// RankPaths filters summaries below thresholdCount and sorts the
// rest by conversions descending, ties by total value descending.
// Remaining ties keep the finalize order.
func RankPaths(summaries []AggregatedPathSummary, thresholdCount int) []AggregatedPathSummary {
	ranked := make([]AggregatedPathSummary, 0, len(summaries))
	for i := range summaries {
		if summaries[i].Conversions >= thresholdCount {
			ranked = append(ranked, summaries[i])
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Conversions != ranked[j].Conversions {
			return ranked[i].Conversions > ranked[j].Conversions
		}
		return ranked[i].TotalValue > ranked[j].TotalValue
	})

	return ranked
}

// MCFReport is the final multi-channel funnel report for one
// (tenant, conversion type) pair. Superseded, not merged, by the next
// successful run for the same pair.
type MCFReport struct {
	Paths            []AggregatedPathSummary `json:"paths"`
	TotalConversions int                     `json:"total_conversions"`
	TotalContacts    int                     `json:"total_contacts"`
	ThresholdPct     float64                 `json:"threshold_pct"`
	ThresholdCount   int                     `json:"threshold_count"`
	ConversionType   string                  `json:"conversion_type"`
	StartDate        int64                   `json:"start_date"`
	EndDate          int64                   `json:"end_date"`
	RefreshedAt      int64                   `json:"refreshed_at"`
	Currencies       []string                `json:"currencies,omitempty"`
	MixedCurrencies  bool                    `json:"mixed_currencies"`
}
