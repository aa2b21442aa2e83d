//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	session := &models.Session{UserID: userID, Title: "First look at orders"}
	require.NoError(t, repo.Create(ctx, session))
	require.NotEmpty(t, session.ID, "create fills the session id")
	assert.True(t, session.Active)
	assert.False(t, session.CreatedAt.IsZero())

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "First look at orders", got.Title)
	assert.True(t, got.Active)
}

func TestSessionRepository_GetMissing(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))

	_, err := repo.Get(context.Background(), "no-such-"+uuid.NewString())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSessionNotFound))
}

func TestSessionRepository_RecordActivity(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()

	session := &models.Session{UserID: uuid.NewString()}
	require.NoError(t, repo.Create(ctx, session))

	at := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(t, repo.RecordActivity(ctx, session.ID, at, 2))

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.WithinDuration(t, at, got.LastActivity, time.Second)

	err = repo.RecordActivity(ctx, "no-such-"+uuid.NewString(), at, 1)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSessionNotFound))
}

func TestSessionRepository_SweepMarksIdleInactive(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	stale := &models.Session{UserID: userID, LastActivity: time.Now().UTC().Add(-2 * time.Hour)}
	require.NoError(t, repo.Create(ctx, stale))
	fresh := &models.Session{UserID: userID}
	require.NoError(t, repo.Create(ctx, fresh))

	cutoff := time.Now().UTC().Add(-30 * time.Minute)
	swept, err := repo.MarkInactiveBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, swept, int64(1))

	got, err := repo.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, got.Active, "idle session is swept inactive")

	got, err = repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "recently active session survives the sweep")

	// Touching a swept session reactivates it.
	require.NoError(t, repo.RecordActivity(ctx, stale.ID, time.Now().UTC(), 0))
	got, err = repo.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestSessionRepository_ListByUserNewestFirst(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		s := &models.Session{UserID: userID, LastActivity: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.Create(ctx, s))
		ids = append(ids, s.ID)
	}

	sessions, err := repo.ListByUser(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
}

func TestSessionRepository_CountActive(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Session{UserID: userID}))
	}

	n, err := repo.CountActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSessionRepository_UpdateContext(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()

	session := &models.Session{UserID: uuid.NewString()}
	require.NoError(t, repo.Create(ctx, session))

	sc := models.SessionContext{
		LastDBURL:     "postgres://db.internal:5432/shop",
		LastDBKind:    models.KindPostgres,
		RecentQueries: []string{"how many orders"},
	}
	require.NoError(t, repo.UpdateContext(ctx, session.ID, sc))

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.LastDBURL, got.Context.LastDBURL)
	assert.Equal(t, models.KindPostgres, got.Context.LastDBKind)
	assert.Equal(t, []string{"how many orders"}, got.Context.RecentQueries)
}

func TestSessionRepository_Delete(t *testing.T) {
	repo := NewSessionRepository(stateForTest(t))
	ctx := context.Background()

	session := &models.Session{UserID: uuid.NewString()}
	require.NoError(t, repo.Create(ctx, session))

	require.NoError(t, repo.Delete(ctx, session.ID))

	_, err := repo.Get(ctx, session.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSessionNotFound))

	err = repo.Delete(ctx, session.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSessionNotFound))
}
