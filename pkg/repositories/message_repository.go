package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/database"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// MessageRepository provides data access for the append-only chat log.
type MessageRepository interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(state *database.State) MessageRepository {
	return &messageRepository{coll: state.DB.Collection(messageCollection)}
}

var _ MessageRepository = (*messageRepository)(nil)

func (r *messageRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListBySession returns up to limit messages in chronological order. When a
// session holds more, the oldest beyond the cap are not returned.
func (r *messageRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var messages []*models.ChatMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	// Newest-first from the store; callers want chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete session messages: %w", err)
	}
	return res.DeletedCount, nil
}
