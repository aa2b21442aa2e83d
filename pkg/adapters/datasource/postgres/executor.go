package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Execute runs one validated statement with positional $N parameters. Both
// row-returning and plain statements go through pgx Query: when the result
// carries field descriptions the rows are collected, otherwise iteration
// just drives execution and the command tag supplies the affected count.
func (d *dialect) Execute(ctx context.Context, h *datasource.Handle, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	rows, err := h.Postgres.Query(ctx, q.SQL, q.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	result := &datasource.QueryResult{}

	fieldDescs := rows.FieldDescriptions()
	if len(fieldDescs) > 0 {
		result.Columns = make([]string, len(fieldDescs))
		for i, fd := range fieldDescs {
			result.Columns[i] = string(fd.Name)
		}

		result.Rows = make([]map[string]any, 0)
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("read row values: %w", err)
			}
			rowMap := make(map[string]any, len(values))
			for i, col := range result.Columns {
				rowMap[col] = normalizeValue(values[i])
			}
			result.Rows = append(result.Rows, rowMap)
		}
		result.RowCount = len(result.Rows)
	} else {
		// pgx defers execution until the result is consumed, so iterate
		// even when no rows are expected.
		for rows.Next() {
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	result.RowsAffected = rows.CommandTag().RowsAffected()
	return result, nil
}

// normalizeValue converts pgx-native values that do not render cleanly as
// JSON. UUID columns arrive as raw 16-byte arrays.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}
