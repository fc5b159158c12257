package model

import (
	"sort"
	"strings"

	U "mcf/util"
)

// RawHistoryEntry is one recorded transition of a tracked categorical
// attribute as returned by the CRM. Timestamps come back as string or
// number depending on the endpoint, values as any primitive.
type RawHistoryEntry struct {
	Timestamp interface{} `json:"timestamp"`
	Value     interface{} `json:"value"`
}

// HistoryEntry is a cleaned, typed history record. Timestamp is epoch
// milliseconds; Value is trimmed and upper-cased.
type HistoryEntry struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// NormalizeMode controls which malformed entries are dropped.
type NormalizeMode int

const (
	// NormalizeForPath drops entries without a positive timestamp.
	// Path building is meaningless without ordering information.
	NormalizeForPath NormalizeMode = iota
	// NormalizeForContribution keeps zero-timestamp entries so the
	// initial recorded value still counts towards the score.
	NormalizeForContribution
)

// NormalizeHistory converts raw history records into an ordered
// sequence: timestamps coerced to int64, values trimmed and
// upper-cased, empty values dropped, sorted ascending by timestamp.
// The sort is stable so same-millisecond entries keep the order the
// CRM returned them in. Never fails; malformed entries are filtered.
func NormalizeHistory(raw []RawHistoryEntry, mode NormalizeMode) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(raw))
	for i := range raw {
		timestamp := U.GetPropertyValueAsInt64(raw[i].Timestamp)
		if mode == NormalizeForPath && timestamp <= 0 {
			continue
		}
		if timestamp < 0 {
			continue
		}

		value := strings.ToUpper(strings.TrimSpace(U.GetPropertyValueAsString(raw[i].Value)))
		if value == "" {
			continue
		}

		entries = append(entries, HistoryEntry{Timestamp: timestamp, Value: value})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})

	return entries
}
