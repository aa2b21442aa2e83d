//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/datapilot-ai/datapilot-engine/pkg/database"
	"github.com/datapilot-ai/datapilot-engine/pkg/testhelpers"
)

// stateForTest wraps the shared Mongo container as an engine state store.
// A dedicated database keeps repository tests away from the shop fixture.
func stateForTest(t *testing.T) *database.State {
	t.Helper()
	tm := testhelpers.GetTestMongo(t)
	return &database.State{Client: tm.Client, DB: tm.Client.Database("datapilot_test")}
}

func TestEnsureIndexes(t *testing.T) {
	state := stateForTest(t)
	ctx := context.Background()

	require.NoError(t, EnsureIndexes(ctx, state, 30*24*time.Hour))
	// Second run must be a no-op, not an error.
	require.NoError(t, EnsureIndexes(ctx, state, 30*24*time.Hour))

	cursor, err := state.DB.Collection(sessionCollection).Indexes().List(ctx)
	require.NoError(t, err)
	var specs []bson.M
	require.NoError(t, cursor.All(ctx, &specs))

	var ttlSeconds int32
	for _, spec := range specs {
		if v, ok := spec["expireAfterSeconds"]; ok {
			ttlSeconds, _ = v.(int32)
		}
	}
	assert.Equal(t, int32(30*24*3600), ttlSeconds, "sessions need a 30-day TTL index on lastActivity")
}
