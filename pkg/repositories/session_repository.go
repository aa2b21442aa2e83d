package repositories

import (
	"context"
	"errors"
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

// SessionRepository provides data access for conversation sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error)
	CountActive(ctx context.Context, userID string) (int64, error)
	RecordActivity(ctx context.Context, sessionID string, at time.Time, messageDelta int) error
	UpdateContext(ctx context.Context, sessionID string, sc models.SessionContext) error
	MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, sessionID string) error
}

type sessionRepository struct {
	coll *mongo.Collection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(state *database.State) SessionRepository {
	return &sessionRepository{coll: state.DB.Collection(sessionCollection)}
}

var _ SessionRepository = (*sessionRepository)(nil)

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = now
	}
	session.Active = true

	if _, err := r.coll.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := r.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastActivity", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepository) CountActive(ctx context.Context, userID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"userId": userID, "active": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

// RecordActivity bumps lastActivity and the message count in one write. A
// touched session is always active again, whatever the sweep decided.
func (r *sessionRepository) RecordActivity(ctx context.Context, sessionID string, at time.Time, messageDelta int) error {
	update := bson.M{
		"$set": bson.M{"lastActivity": at, "active": true},
	}
	if messageDelta != 0 {
		update["$inc"] = bson.M{"messageCount": messageDelta}
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to record session activity: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	}
	return nil
}

func (r *sessionRepository) UpdateContext(ctx context.Context, sessionID string, sc models.SessionContext) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"context": sc}})
	if err != nil {
		return fmt.Errorf("failed to update session context: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	}
	return nil
}

// MarkInactiveBefore flips sessions whose last activity is strictly older
// than the cutoff. Returns how many were swept.
func (r *sessionRepository) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"active": true, "lastActivity": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep idle sessions: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *sessionRepository) Delete(ctx context.Context, sessionID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	}
	return nil
}
