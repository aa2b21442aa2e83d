package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// systemSchemaFilter excludes catalog schemas from discovery.
const systemSchemaFilter = "('pg_catalog', 'information_schema', 'pg_toast')"

// Introspect enumerates user tables with their columns in ordinal order,
// primary keys and foreign keys.
func (d *dialect) Introspect(ctx context.Context, h *datasource.Handle) (*datasource.Introspection, error) {
	pool := h.Postgres

	tables, err := discoverTables(ctx, pool)
	if err != nil {
		return nil, err
	}
	columns, err := discoverColumns(ctx, pool)
	if err != nil {
		return nil, err
	}
	primaryKeys, err := discoverPrimaryKeys(ctx, pool)
	if err != nil {
		return nil, err
	}
	foreignKeys, err := discoverForeignKeys(ctx, pool)
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

// discoverTables returns qualified names of user base tables, ordered for
// stable snapshots. Views and system schemas are excluded.
func discoverTables(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	const query = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ` + systemSchemaFilter + `
		ORDER BY table_schema, table_name
	`

	rows, err := pool.Query(ctx, query)
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

// discoverColumns returns every user table's columns keyed by qualified
// table name, in ordinal order.
func discoverColumns(ctx context.Context, pool *pgxpool.Pool) (map[string][]models.ColumnSchema, error) {
	const query = `
		SELECT table_schema, table_name, column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema NOT IN ` + systemSchemaFilter + `
		ORDER BY table_schema, table_name, ordinal_position
	`

	rows, err := pool.Query(ctx, query)
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

// discoverPrimaryKeys returns primary key columns keyed by qualified table
// name, in key ordinal order so composite keys keep their declared order.
func discoverPrimaryKeys(ctx context.Context, pool *pgxpool.Pool) (map[string][]string, error) {
	const query = `
		SELECT tc.table_schema, tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema NOT IN ` + systemSchemaFilter + `
		ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position
	`

	rows, err := pool.Query(ctx, query)
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

// discoverForeignKeys returns foreign keys keyed by qualified source table.
func discoverForeignKeys(ctx context.Context, pool *pgxpool.Pool) (map[string][]models.ForeignKey, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema,
			kcu.table_name,
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ` + systemSchemaFilter + `
	`

	rows, err := pool.Query(ctx, query)
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
