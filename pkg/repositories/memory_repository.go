package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/database"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// MemoryRepository provides data access for per-turn memory records.
// Records are append-only; feedback is the single mutable field.
type MemoryRepository interface {
	Insert(ctx context.Context, rec *models.MemoryRecord) error
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.MemoryRecord, error)
	CountSimilar(ctx context.Context, userID, dbKey, patternLabel string) (int64, error)
	SetFeedback(ctx context.Context, userID, queryID, feedback string) error
}

type memoryRepository struct {
	coll *mongo.Collection
}

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository(state *database.State) MemoryRepository {
	return &memoryRepository{coll: state.DB.Collection(memoryCollection)}
}

var _ MemoryRepository = (*memoryRepository)(nil)

func (r *memoryRepository) Insert(ctx context.Context, rec *models.MemoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.QueryID == "" {
		rec.QueryID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert memory record: %w", err)
	}
	return nil
}

func (r *memoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.MemoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory records: %w", err)
	}

	var records []*models.MemoryRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode memory records: %w", err)
	}
	return records, nil
}

// CountSimilar counts past turns by the same user, against the same
// database, with the same pattern label.
func (r *memoryRepository) CountSimilar(ctx context.Context, userID, dbKey, patternLabel string) (int64, error) {
	filter := bson.M{"userId": userID, "dbKey": dbKey, "patternLabel": patternLabel}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count similar records: %w", err)
	}
	return n, nil
}

// SetFeedback attaches feedback to the caller's own record for the turn.
func (r *memoryRepository) SetFeedback(ctx context.Context, userID, queryID, feedback string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"queryId": queryID, "userId": userID},
		bson.M{"$set": bson.M{"feedback": feedback}})
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.Newf(apperrors.KindBadInput, "no turn with queryId %s for this user", queryID)
	}
	return nil
}
