package mysql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Execute runs one validated statement with ? placeholders. Row-returning
// statements go through QueryContext; writes go through ExecContext and
// report the affected count.
func (d *dialect) Execute(ctx context.Context, h *datasource.Handle, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	if returnsRows(q.SQL) {
		return d.queryRows(ctx, h, q)
	}

	res, err := h.MySQL.ExecContext(ctx, q.SQL, q.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("read rows affected: %w", err)
	}
	return &datasource.QueryResult{RowsAffected: affected}, nil
}

func (d *dialect) queryRows(ctx context.Context, h *datasource.Handle, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	rows, err := h.MySQL.QueryContext(ctx, q.SQL, q.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("get column types: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			rowMap[col] = normalizeValue(values[i], columnTypes[i].DatabaseTypeName())
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columnNames,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// returnsRows reports whether the statement produces a result set, read off
// the leading verb. The safety gate has already stripped comments and
// rejected multi-statement input.
func returnsRows(sqlText string) bool {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN":
		return true
	}
	return false
}

// normalizeValue converts raw byte values by column type. The text
// protocol, used for statements without parameters, hands every value back
// as bytes: integers and floats are parsed to their native types, true
// binary columns stay as bytes, everything else becomes a string. DECIMAL
// deliberately stays textual so it survives JSON without precision loss.
func normalizeValue(val any, dbType string) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}

	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT":
		return b
	}
	return string(b)
}
