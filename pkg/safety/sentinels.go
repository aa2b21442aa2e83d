package safety

import (
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Date sentinels the planner and synthesizer may emit instead of concrete
// timestamps. The gate resolves them so generated queries never depend on
// database-side date arithmetic.
const (
	SentinelToday    = "DATE_TODAY"
	SentinelWeekAgo  = "DATE_7_DAYS_AGO"
	SentinelMonthAgo = "DATE_30_DAYS_AGO"
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// CoerceSentinels walks v and returns a copy with date sentinels replaced by
// concrete UTC midnight timestamps. When promoteObjectIDs is set, strings
// matching the 24-hex identifier pattern are promoted to primitive.ObjectID;
// that applies to document filter contexts only, relational parameters keep
// hex strings as-is.
func CoerceSentinels(v any, promoteObjectIDs bool, now time.Time) any {
	switch val := v.(type) {
	case string:
		if ts, ok := resolveDateSentinel(val, now); ok {
			return ts
		}
		if promoteObjectIDs && objectIDPattern.MatchString(val) {
			if oid, err := primitive.ObjectIDFromHex(val); err == nil {
				return oid
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = CoerceSentinels(inner, promoteObjectIDs, now)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = CoerceSentinels(inner, promoteObjectIDs, now)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, inner := range val {
			out[i] = CoerceSentinels(inner, promoteObjectIDs, now).(map[string]any)
		}
		return out
	default:
		return val
	}
}

// resolveDateSentinel maps a sentinel to UTC midnight of the target day.
func resolveDateSentinel(s string, now time.Time) (time.Time, bool) {
	var daysBack int
	switch s {
	case SentinelToday:
		daysBack = 0
	case SentinelWeekAgo:
		daysBack = 7
	case SentinelMonthAgo:
		daysBack = 30
	default:
		return time.Time{}, false
	}
	day := now.UTC().AddDate(0, 0, -daysBack)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), true
}
