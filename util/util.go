package util

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const MillisecondsPerDay int64 = 24 * 60 * 60 * 1000

// GetStringListAsBatch - Splits string list into multiple lists.
func GetStringListAsBatch(list []string, batchSize int) [][]string {
	batchList := make([][]string, 0, 0)
	if batchSize <= 0 {
		batchSize = 1
	}

	listLen := len(list)
	for i := 0; i < listLen; {
		next := i + batchSize
		if next > listLen {
			next = listLen
		}

		batchList = append(batchList, list[i:next])
		i = next
	}

	return batchList
}

// GetPropertyValueAsString - Converts a property value of any
// primitive type to its string form. Nil becomes empty string.
func GetPropertyValueAsString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// GetPropertyValueAsInt64 - Coerces a string or numeric property
// value to int64. Non-numeric and absent values coerce to 0.
func GetPropertyValueAsInt64(value interface{}) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		num, err := v.Int64()
		if err != nil {
			return 0
		}
		return num
	case string:
		num, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return num
	default:
		return 0
	}
}

// RoundToFourDecimals - Bounds a float to 4 decimal places to avoid
// floating point noise on values surfaced over the wire.
func RoundToFourDecimals(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func TimeNowUnixMilli() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
