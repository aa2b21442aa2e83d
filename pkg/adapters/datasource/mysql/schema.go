package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// System schemas excluded from discovery. When the connection URL names a
// database, discovery is further restricted to it; MySQL treats schema and
// database as the same thing.
const schemaFilter = `
	table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
	AND (DATABASE() IS NULL OR table_schema = DATABASE())
`

// Introspect enumerates user base tables with their columns in ordinal
// order, primary keys and foreign keys.
func (d *dialect) Introspect(ctx context.Context, h *datasource.Handle) (*datasource.Introspection, error) {
	db := h.MySQL

	tables, err := discoverTables(ctx, db)
	if err != nil {
		return nil, err
	}
	columns, err := discoverColumns(ctx, db)
	if err != nil {
		return nil, err
	}
	primaryKeys, err := discoverPrimaryKeys(ctx, db)
	if err != nil {
		return nil, err
	}
	foreignKeys, err := discoverForeignKeys(ctx, db)
	if err != nil {
		return nil, err
	}

	out := make([]models.TableSchema, 0, len(tables))
	for _, qualified := range tables {
		out = append(out, models.TableSchema{
			QualifiedTable: qualified,
			Columns:        columns[qualified],
			PrimaryKey:     primaryKeys[qualified],
			ForeignKeys:    foreignKeys[qualified],
		})
	}
	return &datasource.Introspection{Tables: out}, nil
}

func discoverTables(ctx context.Context, db *sql.DB) ([]string, error) {
	const query = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND ` + schemaFilter + `
		ORDER BY table_schema, table_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, schema+"."+name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func discoverColumns(ctx context.Context, db *sql.DB) (map[string][]models.ColumnSchema, error) {
	const query = `
		SELECT table_schema, table_name, column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE ` + schemaFilter + `
		ORDER BY table_schema, table_name, ordinal_position
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]models.ColumnSchema)
	for rows.Next() {
		var schema, table string
		var col models.ColumnSchema
		if err := rows.Scan(&schema, &table, &col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		qualified := schema + "." + table
		columns[qualified] = append(columns[qualified], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func discoverPrimaryKeys(ctx context.Context, db *sql.DB) (map[string][]string, error) {
	// MySQL names every primary key constraint PRIMARY, so the usage join
	// must include the table name. The schema filter is spelled out with
	// the tc alias because both joined tables carry table_schema.
	const query = `
		SELECT tc.table_schema, tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		  AND (DATABASE() IS NULL OR tc.table_schema = DATABASE())
		ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string][]string)
	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		qualified := schema + "." + table
		keys[qualified] = append(keys[qualified], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}
	return keys, nil
}

func discoverForeignKeys(ctx context.Context, db *sql.DB) (map[string][]models.ForeignKey, error) {
	const query = `
		SELECT
			constraint_name,
			table_schema,
			table_name,
			column_name,
			referenced_table_schema,
			referenced_table_name,
			referenced_column_name
		FROM information_schema.key_column_usage
		WHERE referenced_table_name IS NOT NULL AND ` + schemaFilter + `
		ORDER BY table_schema, table_name, ordinal_position
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string][]models.ForeignKey)
	for rows.Next() {
		var constraint, srcSchema, srcTable, srcColumn, dstSchema, dstTable, dstColumn string
		if err := rows.Scan(&constraint, &srcSchema, &srcTable, &srcColumn,
			&dstSchema, &dstTable, &dstColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		qualified := srcSchema + "." + srcTable
		fks[qualified] = append(fks[qualified], models.ForeignKey{
			Column:         srcColumn,
			RefTable:       dstSchema + "." + dstTable,
			RefColumn:      dstColumn,
			ConstraintName: constraint,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return fks, nil
}
