package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Execute dispatches one validated document operation. Results come back as
// JSON-ready row maps; write operations echo their outcome counts.
func (d *dialect) Execute(ctx context.Context, h *datasource.Handle, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	coll := h.Mongo.Database(h.MongoDatabase).Collection(q.Collection)

	switch q.Operation {
	case models.OpFind:
		return execFind(ctx, coll, q)
	case models.OpFindOne:
		return execFindOne(ctx, coll, q)
	case models.OpCount:
		return execCount(ctx, coll, q)
	case models.OpAggregate:
		return execAggregate(ctx, coll, q)
	case models.OpInsertOne:
		return execInsertOne(ctx, coll, q)
	case models.OpUpdateOne:
		return execUpdateOne(ctx, coll, q)
	case models.OpDeleteOne:
		return execDeleteOne(ctx, coll, q)
	default:
		return nil, apperrors.Newf(apperrors.KindBadInput,
			"unsupported document operation %q", q.Operation)
	}
}

func execFind(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if len(q.Projection) > 0 {
		opts.SetProjection(q.Projection)
	}
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}

	cursor, err := coll.Find(ctx, filterOrEmpty(q.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return collectRows(ctx, cursor)
}

func execFindOne(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	opts := options.FindOne()
	if len(q.Projection) > 0 {
		opts.SetProjection(q.Projection)
	}
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}

	var doc bson.M
	err := coll.FindOne(ctx, filterOrEmpty(q.Filter), opts).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return &datasource.QueryResult{Rows: []map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("findOne: %w", err)
	}

	return &datasource.QueryResult{
		Rows:     []map[string]any{normalizeDocument(doc)},
		RowCount: 1,
	}, nil
}

func execCount(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	n, err := coll.CountDocuments(ctx, filterOrEmpty(q.Filter))
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	return &datasource.QueryResult{
		Rows:     []map[string]any{{"count": n}},
		RowCount: 1,
	}, nil
}

func execAggregate(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	cursor, err := coll.Aggregate(ctx, q.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return collectRows(ctx, cursor)
}

func execInsertOne(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	res, err := coll.InsertOne(ctx, q.Document)
	if err != nil {
		return nil, fmt.Errorf("insertOne: %w", err)
	}
	return &datasource.QueryResult{
		Rows:         []map[string]any{{"insertedId": normalizeValue(res.InsertedID)}},
		RowCount:     1,
		RowsAffected: 1,
	}, nil
}

func execUpdateOne(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	res, err := coll.UpdateOne(ctx, filterOrEmpty(q.Filter), q.Update)
	if err != nil {
		return nil, fmt.Errorf("updateOne: %w", err)
	}
	return &datasource.QueryResult{
		Rows: []map[string]any{{
			"matchedCount":  res.MatchedCount,
			"modifiedCount": res.ModifiedCount,
		}},
		RowCount:     1,
		RowsAffected: res.ModifiedCount,
	}, nil
}

func execDeleteOne(ctx context.Context, coll *mongodriver.Collection, q *models.ExecutedQuery) (*datasource.QueryResult, error) {
	res, err := coll.DeleteOne(ctx, filterOrEmpty(q.Filter))
	if err != nil {
		return nil, fmt.Errorf("deleteOne: %w", err)
	}
	return &datasource.QueryResult{
		Rows:         []map[string]any{{"deletedCount": res.DeletedCount}},
		RowCount:     1,
		RowsAffected: res.DeletedCount,
	}, nil
}

func collectRows(ctx context.Context, cursor *mongodriver.Cursor) (*datasource.QueryResult, error) {
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}

	rows := make([]map[string]any, len(docs))
	for i, doc := range docs {
		rows[i] = normalizeDocument(doc)
	}
	return &datasource.QueryResult{Rows: rows, RowCount: len(rows)}, nil
}

// filterOrEmpty guards against nil filters, which the driver rejects.
func filterOrEmpty(filter map[string]any) any {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

// normalizeDocument converts BSON-native values into JSON-clean ones.
func normalizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case bson.M:
		return normalizeDocument(t)
	case map[string]any:
		return normalizeDocument(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, elem := range t {
			out[elem.Key] = normalizeValue(elem.Value)
		}
		return out
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = normalizeValue(v)
	}
	return out
}
