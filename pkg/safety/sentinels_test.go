package safety

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCoerceSentinels_DateMapping(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		sentinel string
		want     time.Time
	}{
		{SentinelToday, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{SentinelWeekAgo, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{SentinelMonthAgo, time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.sentinel, func(t *testing.T) {
			got := CoerceSentinels(tt.sentinel, false, now)
			ts, ok := got.(time.Time)
			if !ok {
				t.Fatalf("expected time.Time, got %T", got)
			}
			if !ts.Equal(tt.want) {
				t.Errorf("got %v, want %v", ts, tt.want)
			}
		})
	}
}

func TestCoerceSentinels_WalksNestedStructures(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	in := map[string]any{
		"$and": []any{
			map[string]any{"createdAt": map[string]any{"$gte": SentinelWeekAgo}},
			map[string]any{"status": "open"},
		},
	}

	out := CoerceSentinels(in, false, now).(map[string]any)
	and := out["$and"].([]any)
	created := and[0].(map[string]any)["createdAt"].(map[string]any)
	if _, ok := created["$gte"].(time.Time); !ok {
		t.Errorf("nested sentinel not coerced: %T", created["$gte"])
	}

	// The input must not be mutated.
	orig := in["$and"].([]any)[0].(map[string]any)["createdAt"].(map[string]any)
	if orig["$gte"] != SentinelWeekAgo {
		t.Errorf("input mutated: %v", orig["$gte"])
	}
}

func TestCoerceSentinels_ObjectIDPromotion(t *testing.T) {
	now := time.Now()
	hex := "64a1f2e8b3c9d7a1e5f20456"

	promoted := CoerceSentinels(hex, true, now)
	if _, ok := promoted.(primitive.ObjectID); !ok {
		t.Errorf("expected ObjectID with promotion enabled, got %T", promoted)
	}

	kept := CoerceSentinels(hex, false, now)
	if kept != hex {
		t.Errorf("expected hex string kept with promotion disabled, got %v", kept)
	}

	// Near-misses stay strings.
	for _, s := range []string{"64a1f2e8b3c9d7a1e5f2045", "64a1f2e8b3c9d7a1e5f204567", "zza1f2e8b3c9d7a1e5f20456"} {
		if got := CoerceSentinels(s, true, now); got != s {
			t.Errorf("expected %q unchanged, got %v", s, got)
		}
	}
}

func TestCoerceSentinels_NonStringValuesPassThrough(t *testing.T) {
	now := time.Now()
	for _, v := range []any{42, 3.14, true, nil} {
		if got := CoerceSentinels(v, true, now); got != v {
			t.Errorf("expected %v unchanged, got %v", v, got)
		}
	}
}
