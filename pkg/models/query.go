package models

import (
	"strings"
)

// QueryOperation identifies a document-store operation.
type QueryOperation string

const (
	OpFind      QueryOperation = "find"
	OpFindOne   QueryOperation = "findOne"
	OpCount     QueryOperation = "count"
	OpAggregate QueryOperation = "aggregate"
	OpInsertOne QueryOperation = "insertOne"
	OpUpdateOne QueryOperation = "updateOne"
	OpDeleteOne QueryOperation = "deleteOne"
)

// ValidQueryOperations contains every document operation the executor
// accepts. Bulk write variants are deliberately absent.
var ValidQueryOperations = []QueryOperation{
	OpFind, OpFindOne, OpCount, OpAggregate,
	OpInsertOne, OpUpdateOne, OpDeleteOne,
}

// IsValidQueryOperation checks whether the operation is in the accepted set.
func IsValidQueryOperation(op QueryOperation) bool {
	for _, v := range ValidQueryOperations {
		if v == op {
			return true
		}
	}
	return false
}

// ExecutedQuery is the post-validation, post-normalization query actually
// sent to a database. Document endpoints use the Operation/Collection field
// group; relational endpoints use SQL/Parameters. Description is a short
// human-readable account used in responses and memory records.
type ExecutedQuery struct {
	Kind        DatabaseKind `json:"kind"`
	Description string       `json:"description,omitempty"`

	// Document form.
	Operation  QueryOperation   `json:"operation,omitempty"`
	Collection string           `json:"collection,omitempty"`
	Filter     map[string]any   `json:"filter,omitempty"`
	Projection map[string]any   `json:"projection,omitempty"`
	Sort       map[string]any   `json:"sort,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Pipeline   []map[string]any `json:"pipeline,omitempty"`
	Document   map[string]any   `json:"document,omitempty"`
	Update     map[string]any   `json:"update,omitempty"`

	// Relational form.
	SQL        string `json:"sql,omitempty"`
	Parameters []any  `json:"parameters,omitempty"`
}

// IsWrite reports whether executing the query mutates data.
func (q *ExecutedQuery) IsWrite() bool {
	if q.Kind == KindMongo {
		switch q.Operation {
		case OpInsertOne, OpUpdateOne, OpDeleteOne:
			return true
		}
		return false
	}
	switch SQLKindOf(q.SQL) {
	case QueryKindInsert, QueryKindUpdate, QueryKindDelete:
		return true
	}
	return false
}

// Targets returns the collections or tables the query touches, for memory
// records. Relational queries report the referenced table when it can be
// read off the statement.
func (q *ExecutedQuery) Targets() []string {
	if q.Kind == KindMongo {
		if q.Collection == "" {
			return nil
		}
		return []string{q.Collection}
	}
	if t := sqlPrimaryTable(q.SQL); t != "" {
		return []string{t}
	}
	return nil
}

// QueryKind classifies a turn for memory records.
type QueryKind string

const (
	QueryKindRead         QueryKind = "read"
	QueryKindReadOne      QueryKind = "readOne"
	QueryKindCount        QueryKind = "count"
	QueryKindAggregate    QueryKind = "aggregate"
	QueryKindSQL          QueryKind = "sql"
	QueryKindInsert       QueryKind = "insert"
	QueryKindUpdate       QueryKind = "update"
	QueryKindDelete       QueryKind = "delete"
	QueryKindConversation QueryKind = "conversation"
)

// MemoryKind maps the executed query to its memory-record classification.
func (q *ExecutedQuery) MemoryKind() QueryKind {
	if q.Kind == KindMongo {
		switch q.Operation {
		case OpFind:
			return QueryKindRead
		case OpFindOne:
			return QueryKindReadOne
		case OpCount:
			return QueryKindCount
		case OpAggregate:
			return QueryKindAggregate
		case OpInsertOne:
			return QueryKindInsert
		case OpUpdateOne:
			return QueryKindUpdate
		case OpDeleteOne:
			return QueryKindDelete
		}
		return QueryKindRead
	}
	return SQLKindOf(q.SQL)
}

// SQLKindOf classifies a SQL statement by its leading verb.
func SQLKindOf(sql string) QueryKind {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return QueryKindSQL
	}
	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		return QueryKindInsert
	case "UPDATE":
		return QueryKindUpdate
	case "DELETE":
		return QueryKindDelete
	default:
		return QueryKindSQL
	}
}

// sqlPrimaryTable extracts the table following FROM/INTO/UPDATE. Best
// effort only; complex statements may yield "".
func sqlPrimaryTable(sql string) string {
	fields := strings.Fields(sql)
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			table := strings.Trim(fields[i+1], `"();,`)
			table = strings.TrimSuffix(table, ";")
			if table != "" && !strings.HasPrefix(table, "(") {
				return table
			}
		}
	}
	return ""
}
