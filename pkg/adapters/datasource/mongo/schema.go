package mongo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// sampleSize caps how many documents are read per collection during
// discovery.
const sampleSize = 10

var objectIDHex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Introspect samples each collection to infer its fields, then resolves
// reference candidates against the discovered collection set.
func (d *dialect) Introspect(ctx context.Context, h *datasource.Handle) (*datasource.Introspection, error) {
	db := h.Mongo.Database(h.MongoDatabase)

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)

	collections := make([]models.CollectionSchema, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "system.") {
			continue
		}
		schema, err := describeCollection(ctx, db.Collection(name))
		if err != nil {
			return nil, fmt.Errorf("describe collection %s: %w", name, err)
		}
		collections = append(collections, schema)
	}

	resolveReferences(collections)
	return &datasource.Introspection{Collections: collections}, nil
}

// fieldObservation accumulates what sampling saw for one field.
type fieldObservation struct {
	typ  string
	seen int
}

// describeCollection reads up to sampleSize documents and unifies the
// observed value types per field. Fields present in every sampled document
// are marked required. Index metadata supplies uniqueness.
func describeCollection(ctx context.Context, coll *mongodriver.Collection) (models.CollectionSchema, error) {
	schema := models.CollectionSchema{Collection: coll.Name()}

	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(sampleSize))
	if err != nil {
		return schema, fmt.Errorf("sample documents: %w", err)
	}
	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return schema, fmt.Errorf("decode samples: %w", err)
	}

	observations := make(map[string]*fieldObservation)
	var order []string
	for _, doc := range docs {
		for _, elem := range doc {
			obs, ok := observations[elem.Key]
			if !ok {
				obs = &fieldObservation{}
				observations[elem.Key] = obs
				order = append(order, elem.Key)
			}
			obs.seen++
			obs.typ = unifyTypes(obs.typ, classifyValue(elem.Value))
		}
	}

	indexNames, uniqueFields, err := describeIndexes(ctx, coll)
	if err != nil {
		return schema, err
	}
	schema.Indexes = indexNames

	for _, name := range order {
		obs := observations[name]
		typ := obs.typ
		if typ == "" {
			// Only null values observed.
			typ = models.FieldTypeMixed
		}
		field := models.FieldSchema{
			Name:         name,
			InferredType: typ,
			Required:     obs.seen == len(docs) && len(docs) > 0,
			Unique:       name == "_id" || uniqueFields[name],
			Sensitive:    models.IsSensitiveField(name),
		}
		schema.Fields = append(schema.Fields, field)

		if isReferenceCandidate(name, typ) {
			schema.Relationships = append(schema.Relationships, models.FieldRelationship{
				Field: name,
				Kind:  models.RelationshipPotentialReference,
			})
		}
	}

	return schema, nil
}

// describeIndexes lists index names and the fields covered by single-key
// unique indexes.
func describeIndexes(ctx context.Context, coll *mongodriver.Collection) ([]string, map[string]bool, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list indexes: %w", err)
	}

	var specs []struct {
		Name   string `bson:"name"`
		Key    bson.D `bson:"key"`
		Unique bool   `bson:"unique"`
	}
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, nil, fmt.Errorf("decode indexes: %w", err)
	}

	names := make([]string, 0, len(specs))
	unique := make(map[string]bool)
	for _, spec := range specs {
		names = append(names, spec.Name)
		if spec.Unique && len(spec.Key) == 1 {
			unique[spec.Key[0].Key] = true
		}
	}
	return names, unique, nil
}

// isReferenceCandidate applies the naming convention for references: an
// identifier-typed field whose name ends in Id, other than _id itself.
func isReferenceCandidate(name, typ string) bool {
	return typ == models.FieldTypeIdentifier &&
		name != "_id" &&
		len(name) > 2 &&
		strings.HasSuffix(name, "Id")
}

// resolveReferences fills relationship targets. The target collection is
// the pluralized field stem; when a discovered collection matches it
// case-insensitively its exact name is used.
func resolveReferences(collections []models.CollectionSchema) {
	byLower := make(map[string]string, len(collections))
	for _, c := range collections {
		byLower[strings.ToLower(c.Collection)] = c.Collection
	}

	for i := range collections {
		for j := range collections[i].Relationships {
			rel := &collections[i].Relationships[j]
			stem := strings.TrimSuffix(rel.Field, "Id")
			guess := inflection.Plural(stem)
			if exact, ok := byLower[strings.ToLower(guess)]; ok {
				guess = exact
			}
			rel.Target = guess

			for k := range collections[i].Fields {
				if collections[i].Fields[k].Name == rel.Field {
					collections[i].Fields[k].Ref = guess
				}
			}
		}
	}
}

// classifyValue maps one BSON value onto the inferred type vocabulary.
// Null values contribute presence but no type.
func classifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return models.FieldTypeIdentifier
	case string:
		if objectIDHex.MatchString(t) {
			return models.FieldTypeIdentifier
		}
		return models.FieldTypeString
	case bool:
		return models.FieldTypeBoolean
	case int32, int64, float64, primitive.Decimal128:
		return models.FieldTypeNumber
	case primitive.DateTime:
		return models.FieldTypeDate
	case bson.D, bson.M, map[string]any:
		return models.FieldTypeObject
	case bson.A:
		return arrayType(t)
	case []any:
		return arrayType(t)
	default:
		return models.FieldTypeMixed
	}
}

// arrayType resolves the element type of an observed array value.
func arrayType(elems []any) string {
	if len(elems) == 0 {
		return models.FieldTypeArray
	}
	elemType := ""
	for _, e := range elems {
		elemType = unifyTypes(elemType, classifyValue(e))
	}
	if elemType == "" {
		elemType = models.FieldTypeMixed
	}
	return models.FieldTypeArray + "<" + elemType + ">"
}

// unifyTypes merges two observed types for the same field. Identifier
// degrades to String when plain strings are also seen; arrays unify their
// element types; anything else that disagrees becomes Mixed.
func unifyTypes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	}

	if (a == models.FieldTypeIdentifier && b == models.FieldTypeString) ||
		(a == models.FieldTypeString && b == models.FieldTypeIdentifier) {
		return models.FieldTypeString
	}

	if strings.HasPrefix(a, models.FieldTypeArray) && strings.HasPrefix(b, models.FieldTypeArray) {
		inner := unifyTypes(arrayElemType(a), arrayElemType(b))
		if inner == "" {
			return models.FieldTypeArray
		}
		return models.FieldTypeArray + "<" + inner + ">"
	}

	return models.FieldTypeMixed
}

// arrayElemType extracts T from Array<T>, or "" for a bare Array.
func arrayElemType(typ string) string {
	inner := strings.TrimPrefix(typ, models.FieldTypeArray)
	inner = strings.TrimPrefix(inner, "<")
	return strings.TrimSuffix(inner, ">")
}
