// Package database connects the engine to its own state store and the
// optional schema hot cache. Target databases are handled elsewhere, by the
// datasource adapters.
package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/datapilot-ai/datapilot-engine/pkg/config"
)

// State wraps the MongoDB database holding sessions, messages, memory
// records, profiles and schema snapshots.
type State struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewState connects to the state store and verifies it is reachable.
func NewState(ctx context.Context, cfg *config.StateConfig) (*State, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to state store: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping state store: %w", err)
	}

	return &State{
		Client: client,
		DB:     client.Database(cfg.Database),
	}, nil
}

// Close disconnects from the state store.
func (s *State) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
