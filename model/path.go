package model

import (
	"strings"

	U "mcf/util"
)

const (
	// PathSeparator joins path tokens into the aggregation key.
	PathSeparator = ">"
	// PathTokenUnknown is the sentinel for an empty pre-conversion window.
	PathTokenUnknown = "UNKNOWN"
)

// Path is the canonical, duplicate-collapsed sequence of attribute
// values preceding a conversion. Minimum length 1.
type Path []string

// Key returns the canonical string form used as the aggregation
// bucket key. Two paths share a bucket iff their keys are equal.
func (p Path) Key() string {
	return strings.Join(p, PathSeparator)
}

// BuildPath slices the normalized sequence to the window ending at
// conversionTimestamp and collapses consecutive duplicate values into
// one journey step. lookbackDays bounds the window start; 0 means the
// entire pre-conversion history is eligible. A sequence with no
// eligible entries yields the UNKNOWN sentinel path.
func BuildPath(sequence []HistoryEntry, conversionTimestamp int64, lookbackDays int) Path {
	windowStart := int64(0)
	if lookbackDays > 0 {
		windowStart = conversionTimestamp - int64(lookbackDays)*U.MillisecondsPerDay
	}

	path := make(Path, 0, len(sequence))
	for i := range sequence {
		if sequence[i].Timestamp <= 0 || sequence[i].Timestamp > conversionTimestamp {
			continue
		}
		if lookbackDays > 0 && sequence[i].Timestamp < windowStart {
			continue
		}

		token := sequence[i].Value
		if len(path) > 0 && path[len(path)-1] == token {
			continue
		}
		path = append(path, token)
	}

	if len(path) == 0 {
		return Path{PathTokenUnknown}
	}

	return path
}
