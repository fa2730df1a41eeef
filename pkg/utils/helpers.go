package utils

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is ISO 8601 in UTC with microseconds and a Z suffix
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp formats t as a snapshot timestamp
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var abbreviations = []struct {
	suffix string
	mult   float64
}{
	{"k", 1_000},
	{"m", 1_000_000},
	{"b", 1_000_000_000},
}

// ParseAbbreviatedNumber parses badge values like "1.4k", "2.5M" or "1,234".
// Anything unparseable is 0.
func ParseAbbreviatedNumber(value string) int64 {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 0
	}
	for _, a := range abbreviations {
		if strings.HasSuffix(value, a.suffix) {
			f, err := strconv.ParseFloat(value[:len(value)-1], 64)
			if err != nil {
				return 0
			}
			return truncate(f * a.mult)
		}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return 0
	}
	return truncate(f)
}

func truncate(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

// Numeric safely converts supported types to float64.
func Numeric(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	case float32:
		return float64(val)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float()
		}
		return 0
	}
}
