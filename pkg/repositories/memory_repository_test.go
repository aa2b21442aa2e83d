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

func TestMemoryRepository_InsertFillsIdentifiers(t *testing.T) {
	repo := NewMemoryRepository(stateForTest(t))

	rec := &models.MemoryRecord{
		UserID:       uuid.NewString(),
		DBKey:        "abc:document",
		OriginalText: "how many orders",
		QueryKind:    models.QueryKindCount,
		Succeeded:    true,
	}
	require.NoError(t, repo.Insert(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.QueryID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestMemoryRepository_CountSimilar(t *testing.T) {
	repo := NewMemoryRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	for _, label := range []string{"count:orders", "count:orders", "read:users"} {
		rec := &models.MemoryRecord{
			UserID:       userID,
			DBKey:        "key:document",
			PatternLabel: label,
			Succeeded:    true,
		}
		require.NoError(t, repo.Insert(ctx, rec))
	}

	n, err := repo.CountSimilar(ctx, userID, "key:document", "count:orders")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountSimilar(ctx, userID, "other:document", "count:orders")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "similarity is scoped to the database")
}

func TestMemoryRepository_SetFeedback(t *testing.T) {
	repo := NewMemoryRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	rec := &models.MemoryRecord{UserID: userID, DBKey: "key:document", Succeeded: true}
	require.NoError(t, repo.Insert(ctx, rec))

	require.NoError(t, repo.SetFeedback(ctx, userID, rec.QueryID, models.FeedbackPositive))

	records, err := repo.ListRecent(ctx, userID, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.FeedbackPositive, records[0].Feedback)

	// Another user cannot address this turn.
	err = repo.SetFeedback(ctx, uuid.NewString(), rec.QueryID, models.FeedbackNegative)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))

	err = repo.SetFeedback(ctx, userID, uuid.NewString(), models.FeedbackNegative)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))
}

func TestMemoryRepository_ListRecentNewestFirst(t *testing.T) {
	repo := NewMemoryRepository(stateForTest(t))
	ctx := context.Background()
	userID := uuid.NewString()

	base := time.Now().UTC().Add(-time.Hour)
	for i, text := range []string{"oldest", "middle", "newest"} {
		rec := &models.MemoryRecord{
			UserID:       userID,
			OriginalText: text,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Insert(ctx, rec))
	}

	records, err := repo.ListRecent(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "newest", records[0].OriginalText)
	assert.Equal(t, "middle", records[1].OriginalText)
}
