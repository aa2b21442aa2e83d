package services

import (
	"encoding/json"
	"fmt"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// schemaEntity is the kind-neutral view of one table or collection that the
// profiler and keyword matcher work over.
type schemaEntity struct {
	Name   string
	Fields []string
}

// parseSchemaEntities flattens the canonical schema JSON into entity views.
// An empty or degraded ("[]") schema yields no entities.
func parseSchemaEntities(kind models.DatabaseKind, schemaJSON string) ([]schemaEntity, error) {
	if schemaJSON == "" {
		return nil, nil
	}

	if kind == models.KindMongo {
		var collections []models.CollectionSchema
		if err := json.Unmarshal([]byte(schemaJSON), &collections); err != nil {
			return nil, fmt.Errorf("failed to parse collection schema: %w", err)
		}
		entities := make([]schemaEntity, 0, len(collections))
		for _, c := range collections {
			e := schemaEntity{Name: c.Collection}
			for _, f := range c.Fields {
				e.Fields = append(e.Fields, f.Name)
			}
			entities = append(entities, e)
		}
		return entities, nil
	}

	var tables []models.TableSchema
	if err := json.Unmarshal([]byte(schemaJSON), &tables); err != nil {
		return nil, fmt.Errorf("failed to parse table schema: %w", err)
	}
	entities := make([]schemaEntity, 0, len(tables))
	for _, t := range tables {
		e := schemaEntity{Name: t.QualifiedTable}
		for _, c := range t.Columns {
			e.Fields = append(e.Fields, c.Name)
		}
		entities = append(entities, e)
	}
	return entities, nil
}
