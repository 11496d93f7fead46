package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
}

// ToEpochMillis normalizes the timestamp shapes that reach the service
// (epoch numbers, numeric strings, ISO dates, time values) into epoch
// milliseconds. Plain dates are read as UTC midnight. The second return
// value is false for absent or unparseable input.
func ToEpochMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		return floatMillis(float64(t))
	case float64:
		return floatMillis(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return floatMillis(f)
		}
		return 0, false
	case *int64:
		if t == nil {
			return 0, false
		}
		return *t, true
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case string:
		return parseMillisString(t)
	case *string:
		if t == nil {
			return 0, false
		}
		return parseMillisString(*t)
	}
	return 0, false
}

// floatMillis truncates f, reporting false for values an int64 cannot hold.
func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || f < -math.Exp2(63) || f >= math.Exp2(63) {
		return 0, false
	}
	return int64(f), true
}

func parseMillisString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if isBlank(s) {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatMillis(f)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), true
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

func isBlank(s string) bool {
	return s == "" || s == "-"
}

// isAbsent reports whether v is one of the "no value" markers used by the
// import sheets and the web form: nil, "", "-" or 0.
func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return isBlank(strings.TrimSpace(t))
	case *string:
		return t == nil || isBlank(strings.TrimSpace(*t))
	case *int64:
		return t == nil || *t == 0
	}
	if ms, ok := ToEpochMillis(v); ok && ms == 0 {
		return true
	}
	return false
}

// MillisPtr is ToEpochMillis for optional columns.
func MillisPtr(v any) *int64 {
	ms, ok := ToEpochMillis(v)
	if !ok {
		return nil
	}
	return &ms
}

// CompletionPtr is MillisPtr that also treats 0 as "not completed".
func CompletionPtr(v any) *int64 {
	if isAbsent(v) {
		return nil
	}
	return MillisPtr(v)
}

// DayStart returns local midnight of the day containing t.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
