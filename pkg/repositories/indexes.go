// Package repositories provides data access for the engine's state store:
// sessions, messages, memory records, user profiles and schema snapshots.
package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/database"
)

// State store collection names.
const (
	sessionCollection  = "chat_sessions"
	messageCollection  = "chat_messages"
	memoryCollection   = "memory_records"
	profileCollection  = "user_profiles"
	snapshotCollection = "schema_snapshots"
)

// EnsureIndexes creates the state-store indexes. Safe to call on every
// startup; existing indexes are left alone. There is no migrations
// framework: index bootstrap is the entire state schema.
//
// user_profiles and schema_snapshots key on _id (userId and dbKey), so
// their uniqueness needs no extra index.
func EnsureIndexes(ctx context.Context, state *database.State, sessionTTL time.Duration) error {
	type indexSet struct {
		collection string
		indexes    []mongo.IndexModel
	}

	sets := []indexSet{
		{
			collection: sessionCollection,
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "lastActivity", Value: -1}}},
				{
					Keys:    bson.D{{Key: "lastActivity", Value: 1}},
					Options: options.Index().SetExpireAfterSeconds(int32(sessionTTL.Seconds())),
				},
			},
		},
		{
			collection: messageCollection,
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "timestamp", Value: 1}}},
			},
		},
		{
			collection: memoryCollection,
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
				{Keys: bson.D{{Key: "queryId", Value: 1}}},
			},
		},
	}

	for _, set := range sets {
		if _, err := state.DB.Collection(set.collection).Indexes().CreateMany(ctx, set.indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes on %s: %w", set.collection, err)
		}
	}
	return nil
}
