//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func TestProfileRepository_GetMissingReturnsNil(t *testing.T) {
	repo := NewProfileRepository(stateForTest(t))

	profile, err := repo.Get(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, profile, "a first-time user has no profile")
}

func TestProfileRepository_UpsertRoundTrip(t *testing.T) {
	repo := NewProfileRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	profile := models.NewUserProfile(userID)
	profile.FrequentCollections = []string{"orders"}
	profile.PatternCounters = []models.PatternCounter{
		{Label: "count:orders", Count: 3, LastUsed: time.Now().UTC()},
	}
	profile.SuccessCount = 3
	require.NoError(t, repo.Upsert(ctx, profile))
	assert.False(t, profile.UpdatedAt.IsZero())

	got, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.SkillBeginner, got.SkillLevel)
	assert.Equal(t, []string{"orders"}, got.FrequentCollections)
	require.Len(t, got.PatternCounters, 1)
	assert.Equal(t, 3, got.PatternCounters[0].Count)

	// Upsert replaces the whole document.
	got.SkillLevel = models.SkillIntermediate
	got.SuccessCount = 51
	require.NoError(t, repo.Upsert(ctx, got))

	again, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.SkillIntermediate, again.SkillLevel)
	assert.Equal(t, 51, again.SuccessCount)
}
