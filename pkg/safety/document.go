package safety

import (
	"fmt"
	"strings"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// dangerousOperators execute server-side JavaScript and are rejected
// anywhere in a filter, update or pipeline subtree.
var dangerousOperators = map[string]bool{
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
}

// writeBackStages persist aggregation output back into storage.
var writeBackStages = map[string]bool{
	"$out":   true,
	"$merge": true,
}

// bulkOperations are recognized so their rejection names the real reason
// instead of a generic unknown-operation error.
var bulkOperations = map[string]bool{
	"insertMany": true,
	"updateMany": true,
	"deleteMany": true,
}

// checkDocument runs the document-store rules and normalizes the query in
// place: update shorthand becomes $set form, projections lose sensitive
// fields, find/aggregate receive a row cap, sentinels become concrete values.
func (g *Gate) checkDocument(q *models.ExecutedQuery) error {
	if !models.IsValidQueryOperation(q.Operation) {
		if bulkOperations[string(q.Operation)] {
			return apperrors.SafetyViolation(apperrors.RuleBulkWriteForbidden,
				fmt.Sprintf("%s affects an unbounded set of documents; use the single-document form", q.Operation))
		}
		return apperrors.SafetyViolation(apperrors.RuleUnknownOperation,
			fmt.Sprintf("operation %q is not permitted", q.Operation))
	}
	if q.Collection == "" {
		return apperrors.New(apperrors.KindBadInput, "collection is required")
	}

	if op := findDangerousOperator(q.Filter); op != "" {
		return apperrors.SafetyViolation(apperrors.RuleDangerousOperator,
			fmt.Sprintf("operator %s executes server-side JavaScript and is not allowed", op))
	}
	if op := findDangerousOperator(q.Update); op != "" {
		return apperrors.SafetyViolation(apperrors.RuleDangerousOperator,
			fmt.Sprintf("operator %s executes server-side JavaScript and is not allowed", op))
	}
	for _, stage := range q.Pipeline {
		for name := range stage {
			if writeBackStages[strings.ToLower(name)] {
				return apperrors.SafetyViolation(apperrors.RuleWriteStageForbidden,
					fmt.Sprintf("aggregation stage %s writes back to storage and is not allowed", name))
			}
		}
		if op := findDangerousOperator(stage); op != "" {
			return apperrors.SafetyViolation(apperrors.RuleDangerousOperator,
				fmt.Sprintf("operator %s executes server-side JavaScript and is not allowed", op))
		}
	}

	switch q.Operation {
	case models.OpInsertOne:
		if len(q.Document) == 0 {
			return apperrors.New(apperrors.KindBadInput, "insertOne requires a document")
		}
	case models.OpUpdateOne:
		if len(q.Filter) == 0 {
			return apperrors.SafetyViolation(apperrors.RuleFilterRequired,
				"updateOne requires a specific filter")
		}
		if len(q.Update) == 0 {
			return apperrors.New(apperrors.KindBadInput, "updateOne requires an update document")
		}
		q.Update = normalizeUpdate(q.Update)
	case models.OpDeleteOne:
		if len(q.Filter) == 0 {
			return apperrors.SafetyViolation(apperrors.RuleFilterRequired,
				"deleteOne requires a specific filter")
		}
	}

	switch q.Operation {
	case models.OpFind, models.OpFindOne:
		projection, err := sanitizeProjection(q.Projection)
		if err != nil {
			return err
		}
		q.Projection = projection
	}

	switch q.Operation {
	case models.OpFind:
		q.Limit = g.RowCap(q.Limit)
	case models.OpAggregate:
		q.Pipeline = g.capPipeline(q.Pipeline)
	}

	now := g.now().UTC()
	if q.Filter != nil {
		q.Filter = CoerceSentinels(q.Filter, true, now).(map[string]any)
	}
	if q.Pipeline != nil {
		q.Pipeline = CoerceSentinels(q.Pipeline, true, now).([]map[string]any)
	}
	if q.Update != nil {
		q.Update = CoerceSentinels(q.Update, false, now).(map[string]any)
	}
	if q.Document != nil {
		q.Document = CoerceSentinels(q.Document, false, now).(map[string]any)
	}

	return nil
}

// findDangerousOperator returns the first server-side JavaScript operator
// found anywhere in the subtree, or "".
func findDangerousOperator(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if dangerousOperators[k] {
				return k
			}
			if op := findDangerousOperator(inner); op != "" {
				return op
			}
		}
	case []any:
		for _, inner := range val {
			if op := findDangerousOperator(inner); op != "" {
				return op
			}
		}
	case []map[string]any:
		for _, inner := range val {
			if op := findDangerousOperator(inner); op != "" {
				return op
			}
		}
	}
	return ""
}

// normalizeUpdate wraps a plain field map in $set so updates always use an
// explicit operator form. Updates already using operators pass through.
func normalizeUpdate(update map[string]any) map[string]any {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return update
		}
	}
	return map[string]any{"$set": update}
}

// sanitizeProjection enforces the sensitive-field rules. An absent
// projection becomes an exclusion of the known sensitive names. A caller
// exclusion projection gains any missing sensitive exclusions. A caller
// inclusion projection must not name a sensitive field.
func sanitizeProjection(projection map[string]any) (map[string]any, error) {
	if len(projection) == 0 {
		out := make(map[string]any, len(models.SensitiveFieldNames))
		for _, name := range models.SensitiveFieldNames {
			out[name] = 0
		}
		return out, nil
	}

	inclusion := false
	for field, v := range projection {
		if field == "_id" {
			continue
		}
		if projectionIncludes(v) {
			inclusion = true
			if models.IsSensitiveField(field) {
				return nil, apperrors.SafetyViolation(apperrors.RuleSensitiveProjection,
					fmt.Sprintf("projection may not include sensitive field %q", field))
			}
		}
	}
	if inclusion {
		// Inclusion projections already exclude everything unnamed.
		return projection, nil
	}

	out := make(map[string]any, len(projection)+len(models.SensitiveFieldNames))
	for k, v := range projection {
		out[k] = v
	}
	for _, name := range models.SensitiveFieldNames {
		if _, present := out[name]; !present {
			out[name] = 0
		}
	}
	return out, nil
}

func projectionIncludes(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		// Expression projections ({field: {$slice: n}}) count as inclusion.
		return v != nil
	}
}

// capPipeline clamps an existing $limit stage to the configured cap, or
// appends one when the pipeline has none.
func (g *Gate) capPipeline(pipeline []map[string]any) []map[string]any {
	for _, stage := range pipeline {
		if raw, ok := stage["$limit"]; ok {
			if n, isNum := toInt(raw); isNum {
				stage["$limit"] = g.RowCap(n)
			} else {
				stage["$limit"] = g.defaultRowCap
			}
			return pipeline
		}
	}
	return append(pipeline, map[string]any{"$limit": g.defaultRowCap})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
