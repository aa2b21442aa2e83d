package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func registryHandle(t *testing.T) *datasource.Handle {
	t.Helper()
	endpoint, err := models.NewDatabaseEndpoint("mongodb://db.example.com:27017/shop", "mongodb")
	require.NoError(t, err)
	return &datasource.Handle{Endpoint: *endpoint}
}

func TestSchemaRegistry_FreshSnapshotServedWithoutIntrospection(t *testing.T) {
	handle := registryHandle(t)
	snapshots := newFakeSchemaRepo()
	require.NoError(t, snapshots.Upsert(context.Background(), &models.SchemaSnapshot{
		DBKey:      handle.Endpoint.DBKey(),
		Kind:       models.KindMongo,
		SchemaJSON: usersCollectionSchema,
		LastBuilt:  time.Now().UTC(),
	}))

	// The handle carries no live connection; serving from the snapshot must
	// not touch the database.
	r := NewSchemaRegistry(snapshots, nil, time.Hour, zap.NewNop())
	got, err := r.GetOrBuild(context.Background(), handle, false)
	require.NoError(t, err)
	assert.Equal(t, usersCollectionSchema, got)
}

func TestSchemaRegistry_HotCacheTTLBoundedByRemainingFreshness(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	r := NewSchemaRegistry(newFakeSchemaRepo(), nil, time.Hour, zap.NewNop()).(*schemaRegistry)
	r.now = func() time.Time { return now }

	snapshot := &models.SchemaSnapshot{LastBuilt: now.Add(-45 * time.Minute)}
	assert.Equal(t, 15*time.Minute, r.remainingFreshness(snapshot))

	// A snapshot past its window must not get a hot-cache entry at all.
	expired := &models.SchemaSnapshot{LastBuilt: now.Add(-2 * time.Hour)}
	assert.LessOrEqual(t, r.remainingFreshness(expired), time.Duration(0))
}

func TestSchemaRegistry_SnapshotFreshness(t *testing.T) {
	now := time.Now().UTC()
	snapshot := &models.SchemaSnapshot{LastBuilt: now.Add(-30 * time.Minute)}
	assert.True(t, snapshot.Fresh(time.Hour, now))
	assert.False(t, snapshot.Fresh(15*time.Minute, now))
}
