package models

import (
	"strings"
	"time"
)

// Inferred field types for document collections, ordered by precedence.
// When samples disagree, the higher-precedence type wins.
const (
	FieldTypeIdentifier = "Identifier"
	FieldTypeString     = "String"
	FieldTypeNumber     = "Number"
	FieldTypeBoolean    = "Boolean"
	FieldTypeDate       = "Date"
	FieldTypeObject     = "Object"
	FieldTypeArray      = "Array"
	FieldTypeMixed      = "Mixed"
)

// Relationship kinds between document fields and other collections.
const (
	RelationshipReference          = "reference"
	RelationshipPotentialReference = "potentialReference"
)

// FieldSchema describes one field observed in a document collection.
type FieldSchema struct {
	Name         string   `json:"name"`
	InferredType string   `json:"inferredType"`
	Required     bool     `json:"required,omitempty"`
	Unique       bool     `json:"unique,omitempty"`
	Enum         []string `json:"enum,omitempty"`
	Ref          string   `json:"ref,omitempty"`
	Sensitive    bool     `json:"sensitive,omitempty"`
}

// FieldRelationship links a document field to a target collection.
type FieldRelationship struct {
	Field  string `json:"field"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// CollectionSchema describes one collection in a document database.
type CollectionSchema struct {
	Collection    string              `json:"collection"`
	Fields        []FieldSchema       `json:"fields"`
	Indexes       []string            `json:"indexes,omitempty"`
	Relationships []FieldRelationship `json:"relationships,omitempty"`
}

// ColumnSchema describes one column of a relational table.
type ColumnSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey describes one foreign-key constraint on a relational table.
type ForeignKey struct {
	Column         string `json:"column"`
	RefTable       string `json:"refTable"`
	RefColumn      string `json:"refColumn"`
	ConstraintName string `json:"constraintName"`
}

// TableSchema describes one relational table, columns in ordinal order.
type TableSchema struct {
	QualifiedTable string         `json:"qualifiedTable"`
	Columns        []ColumnSchema `json:"columns"`
	PrimaryKey     []string       `json:"primaryKey,omitempty"`
	ForeignKeys    []ForeignKey   `json:"foreignKeys,omitempty"`
}

// SchemaSnapshot is a persisted introspection result for one endpoint.
// SchemaJSON holds the canonical JSON array of CollectionSchema or
// TableSchema depending on Kind. Snapshots never contain credentials:
// DBKey is derived from the sanitized URL and the payload carries only
// structural information.
type SchemaSnapshot struct {
	DBKey      string       `bson:"_id" json:"dbKey"`
	Kind       DatabaseKind `bson:"kind" json:"kind"`
	SchemaJSON string       `bson:"schemaJson" json:"schemaJson"`
	TableCount int          `bson:"tableCount" json:"tableCount"`
	LastBuilt  time.Time    `bson:"lastBuilt" json:"lastBuilt"`
}

// Fresh reports whether the snapshot is still usable under the given TTL.
func (s *SchemaSnapshot) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastBuilt) < ttl
}

// SensitiveFieldNames are field/column name fragments that must be excluded
// from projections and returned rows by default. They still appear in schema
// snapshots so guardrails and planners can reference them.
var SensitiveFieldNames = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key",
	"salt", "hash", "credential", "private_key", "privatekey",
}

// IsSensitiveField reports whether a field or column name matches the
// sensitive-name list (case-insensitive substring match).
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range SensitiveFieldNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
