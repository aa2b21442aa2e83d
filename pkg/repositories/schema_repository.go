package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/database"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// SchemaRepository provides data access for persisted schema snapshots.
// Snapshots are keyed by dbKey and never contain credentials.
type SchemaRepository interface {
	// Get returns nil when no snapshot exists for the key.
	Get(ctx context.Context, dbKey string) (*models.SchemaSnapshot, error)
	Upsert(ctx context.Context, snapshot *models.SchemaSnapshot) error
	Delete(ctx context.Context, dbKey string) error
}

type schemaRepository struct {
	coll *mongo.Collection
}

// NewSchemaRepository creates a new SchemaRepository.
func NewSchemaRepository(state *database.State) SchemaRepository {
	return &schemaRepository{coll: state.DB.Collection(snapshotCollection)}
}

var _ SchemaRepository = (*schemaRepository)(nil)

func (r *schemaRepository) Get(ctx context.Context, dbKey string) (*models.SchemaSnapshot, error) {
	var snapshot models.SchemaSnapshot
	err := r.coll.FindOne(ctx, bson.M{"_id": dbKey}).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *schemaRepository) Upsert(ctx context.Context, snapshot *models.SchemaSnapshot) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": snapshot.DBKey},
		snapshot,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert schema snapshot: %w", err)
	}
	return nil
}

func (r *schemaRepository) Delete(ctx context.Context, dbKey string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": dbKey}); err != nil {
		return fmt.Errorf("failed to delete schema snapshot: %w", err)
	}
	return nil
}
