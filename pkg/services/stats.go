package services

import (
	"fmt"
	"sort"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// ComputeStats runs the requested in-process statistics over one step's
// rows. Keys in the result are the compact op strings ("mean:price"), so a
// trace reader can match outputs to the plan. No database access.
func ComputeStats(rows []map[string]any, ops []models.StatsOp) map[string]any {
	out := make(map[string]any, len(ops))
	for _, op := range ops {
		out[op.String()] = computeStat(rows, op)
	}
	return out
}

func computeStat(rows []map[string]any, op models.StatsOp) any {
	switch op.Name {
	case models.StatsCount:
		return len(rows)
	case models.StatsTopK:
		return topK(rows, op.Field, op.K)
	case models.StatsDistinct:
		return distinct(rows, op.Field)
	case models.StatsMean, models.StatsMin, models.StatsMax, models.StatsSum:
		return numericStat(rows, op)
	default:
		return nil
	}
}

// topK returns the K most frequent values of the field, most frequent first.
// Ties break lexicographically so the output is deterministic.
type valueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

func topK(rows []map[string]any, field string, k int) []valueCount {
	counts := make(map[string]int)
	for _, row := range rows {
		if v, ok := row[field]; ok && v != nil {
			counts[fmt.Sprintf("%v", v)]++
		}
	}

	ranked := make([]valueCount, 0, len(counts))
	for v, n := range counts {
		ranked = append(ranked, valueCount{Value: v, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Value < ranked[j].Value
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func distinct(rows []map[string]any, field string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, row := range rows {
		if v, ok := row[field]; ok && v != nil {
			s := fmt.Sprintf("%v", v)
			if !seen[s] {
				seen[s] = true
				values = append(values, s)
			}
		}
	}
	sort.Strings(values)
	return values
}

// numericStat computes mean/min/max/sum over the numeric values of the
// field. Non-numeric values are skipped; no numeric values yields nil.
func numericStat(rows []map[string]any, op models.StatsOp) any {
	var (
		sum      float64
		minV     float64
		maxV     float64
		observed int
	)
	for _, row := range rows {
		n, ok := asFloat(row[op.Field])
		if !ok {
			continue
		}
		if observed == 0 {
			minV, maxV = n, n
		} else {
			if n < minV {
				minV = n
			}
			if n > maxV {
				maxV = n
			}
		}
		sum += n
		observed++
	}
	if observed == 0 {
		return nil
	}

	switch op.Name {
	case models.StatsMean:
		return sum / float64(observed)
	case models.StatsMin:
		return minV
	case models.StatsMax:
		return maxV
	default:
		return sum
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
