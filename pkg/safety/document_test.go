package safety

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func documentQuery(op models.QueryOperation) *models.ExecutedQuery {
	return &models.ExecutedQuery{
		Kind:       models.KindMongo,
		Operation:  op,
		Collection: "orders",
	}
}

func TestCheckDocument_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *models.ExecutedQuery
		wantRule string
	}{
		{
			name: "updateMany is a bulk write",
			build: func() *models.ExecutedQuery {
				q := documentQuery("updateMany")
				q.Filter = map[string]any{"status": "open"}
				q.Update = map[string]any{"status": "closed"}
				return q
			},
			wantRule: apperrors.RuleBulkWriteForbidden,
		},
		{
			name: "deleteMany is a bulk write",
			build: func() *models.ExecutedQuery {
				q := documentQuery("deleteMany")
				q.Filter = map[string]any{"status": "open"}
				return q
			},
			wantRule: apperrors.RuleBulkWriteForbidden,
		},
		{
			name: "unknown operation",
			build: func() *models.ExecutedQuery {
				return documentQuery("mapReduce")
			},
			wantRule: apperrors.RuleUnknownOperation,
		},
		{
			name: "where operator in filter",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpFind)
				q.Filter = map[string]any{"$where": "this.total > 100"}
				return q
			},
			wantRule: apperrors.RuleDangerousOperator,
		},
		{
			name: "where operator nested under or",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpFind)
				q.Filter = map[string]any{
					"$or": []any{
						map[string]any{"status": "open"},
						map[string]any{"$where": "sleep(1000)"},
					},
				}
				return q
			},
			wantRule: apperrors.RuleDangerousOperator,
		},
		{
			name: "function operator in pipeline expression",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpAggregate)
				q.Pipeline = []map[string]any{
					{"$project": map[string]any{
						"score": map[string]any{"$function": map[string]any{"body": "..."}},
					}},
				}
				return q
			},
			wantRule: apperrors.RuleDangerousOperator,
		},
		{
			name: "out stage writes back",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpAggregate)
				q.Pipeline = []map[string]any{
					{"$match": map[string]any{"status": "open"}},
					{"$out": "evil_copy"},
				}
				return q
			},
			wantRule: apperrors.RuleWriteStageForbidden,
		},
		{
			name: "merge stage writes back",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpAggregate)
				q.Pipeline = []map[string]any{
					{"$merge": map[string]any{"into": "other"}},
				}
				return q
			},
			wantRule: apperrors.RuleWriteStageForbidden,
		},
		{
			name: "updateOne without filter",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpUpdateOne)
				q.Update = map[string]any{"status": "closed"}
				return q
			},
			wantRule: apperrors.RuleFilterRequired,
		},
		{
			name: "deleteOne without filter",
			build: func() *models.ExecutedQuery {
				return documentQuery(models.OpDeleteOne)
			},
			wantRule: apperrors.RuleFilterRequired,
		},
		{
			name: "projection including a sensitive field",
			build: func() *models.ExecutedQuery {
				q := documentQuery(models.OpFind)
				q.Projection = map[string]any{"name": 1, "password": 1}
				return q
			},
			wantRule: apperrors.RuleSensitiveProjection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(1000)
			err := g.Check(tt.build())
			if err == nil {
				t.Fatalf("expected rejection, got nil")
			}
			if got := apperrors.RuleOf(err); got != tt.wantRule {
				t.Errorf("expected rule %s, got %s (err: %v)", tt.wantRule, got, err)
			}
		})
	}
}

func TestCheckDocument_FindCapIsMinOfRequestedAndDefault(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		def       int
		want      int
	}{
		{name: "no request takes default", requested: 0, def: 1000, want: 1000},
		{name: "small request kept", requested: 10, def: 1000, want: 10},
		{name: "large request clamped", requested: 5000, def: 1000, want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(tt.def)
			q := documentQuery(models.OpFind)
			q.Limit = tt.requested
			if err := g.Check(q); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Limit != tt.want {
				t.Errorf("got limit %d, want %d", q.Limit, tt.want)
			}
		})
	}
}

func TestCheckDocument_AggregateLimitAppended(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpAggregate)
	q.Pipeline = []map[string]any{
		{"$match": map[string]any{"status": "open"}},
		{"$group": map[string]any{"_id": "$customer", "total": map[string]any{"$sum": "$amount"}}},
	}
	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := q.Pipeline[len(q.Pipeline)-1]
	limit, ok := last["$limit"]
	if !ok {
		t.Fatalf("expected a $limit stage appended, got %v", q.Pipeline)
	}
	if n, _ := toInt(limit); n != 1000 {
		t.Errorf("expected appended limit 1000, got %v", limit)
	}
}

func TestCheckDocument_AggregateExistingLimitClamped(t *testing.T) {
	g := newTestGate(100)
	q := documentQuery(models.OpAggregate)
	q.Pipeline = []map[string]any{
		{"$match": map[string]any{}},
		{"$limit": 50000},
	}
	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := toInt(q.Pipeline[1]["$limit"]); n != 100 {
		t.Errorf("expected limit clamped to 100, got %v", q.Pipeline[1]["$limit"])
	}
}

func TestCheckDocument_PlainUpdateNormalizedToSet(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpUpdateOne)
	q.Filter = map[string]any{"_id": "abc"}
	q.Update = map[string]any{"status": "closed", "closedBy": "agent"}

	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set, ok := q.Update["$set"].(map[string]any)
	if !ok {
		t.Fatalf("expected update wrapped in $set, got %v", q.Update)
	}
	if set["status"] != "closed" || set["closedBy"] != "agent" {
		t.Errorf("wrapped update lost fields: %v", set)
	}
}

func TestCheckDocument_OperatorUpdateLeftAlone(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpUpdateOne)
	q.Filter = map[string]any{"_id": "abc"}
	q.Update = map[string]any{"$inc": map[string]any{"visits": 1}}

	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, wrapped := q.Update["$set"]; wrapped {
		t.Errorf("operator update must not be re-wrapped: %v", q.Update)
	}
}

func TestCheckDocument_DefaultProjectionExcludesSensitiveFields(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpFind)

	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Projection) == 0 {
		t.Fatalf("expected an injected exclusion projection")
	}
	for _, name := range models.SensitiveFieldNames {
		v, present := q.Projection[name]
		if !present {
			t.Errorf("expected %q excluded by default", name)
			continue
		}
		if n, _ := toInt(v); n != 0 {
			t.Errorf("expected %q mapped to 0, got %v", name, v)
		}
	}
}

func TestCheckDocument_ExclusionProjectionGainsSensitiveExclusions(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpFind)
	q.Projection = map[string]any{"internalNotes": 0}

	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, present := q.Projection["password"]; !present || v != 0 {
		t.Errorf("expected password excluded alongside caller exclusions, got %v", q.Projection)
	}
	if q.Projection["internalNotes"] != 0 {
		t.Errorf("caller exclusion lost: %v", q.Projection)
	}
}

func TestCheckDocument_InclusionProjectionKept(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpFind)
	q.Projection = map[string]any{"name": 1, "total": 1}

	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Inclusion projections exclude everything unnamed already; no exclusion
	// entries may be mixed in.
	if _, present := q.Projection["password"]; present {
		t.Errorf("inclusion projection must not gain exclusion entries: %v", q.Projection)
	}
}

func TestCheckDocument_SentinelsAndObjectIDPromotion(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpFind)
	q.Filter = map[string]any{
		"customerId": "64a1f2e8b3c9d7a1e5f20456",
		"createdAt":  map[string]any{"$gte": SentinelMonthAgo},
	}

	if err := g.Check(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := q.Filter["customerId"].(primitive.ObjectID); !ok {
		t.Errorf("expected 24-hex string promoted to ObjectID, got %T", q.Filter["customerId"])
	}

	created := q.Filter["createdAt"].(map[string]any)
	ts, ok := created["$gte"].(time.Time)
	if !ok {
		t.Fatalf("expected date sentinel coerced, got %T", created["$gte"])
	}
	want := time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts, want)
	}
}

func TestCheckDocument_InsertRequiresDocument(t *testing.T) {
	g := newTestGate(1000)
	q := documentQuery(models.OpInsertOne)

	err := g.Check(q)
	if err == nil {
		t.Fatalf("expected error for empty insert document")
	}
	if !apperrors.IsKind(err, apperrors.KindBadInput) {
		t.Errorf("expected BadInput, got %v", err)
	}
}
