package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func newMemoryService() (*fakeMemoryRepo, *fakeProfileRepo, MemoryService) {
	records := &fakeMemoryRepo{}
	profiles := newFakeProfileRepo()
	return records, profiles, NewMemoryService(records, profiles, zap.NewNop())
}

func successfulTurn(userID, target string) *models.MemoryRecord {
	return &models.MemoryRecord{
		UserID:       userID,
		DBKey:        "k1",
		OriginalText: "show me the latest orders",
		QueryKind:    models.QueryKindRead,
		Targets:      []string{target},
		Succeeded:    true,
	}
}

func TestMemory_InsightsForFirstTimeUser(t *testing.T) {
	_, _, svc := newMemoryService()

	insights := svc.Insights(context.Background(), "u1", "k1", "show me orders")
	require.NotNil(t, insights)
	assert.Equal(t, models.SkillBeginner, insights.SkillLevel)
	assert.Equal(t, models.DetailBrief, insights.PreferredDetail)
	assert.Equal(t, 0, insights.SimilarQueries)
	assert.Equal(t, "read:order", insights.PatternLabel, "tokens fold to singular")
}

func TestMemory_SimilarQueriesCountGrows(t *testing.T) {
	_, _, svc := newMemoryService()
	ctx := context.Background()

	svc.RecordTurn(ctx, successfulTurn("u1", "orders"))
	svc.RecordTurn(ctx, successfulTurn("u1", "orders"))

	insights := svc.Insights(ctx, "u1", "k1", "show me the latest orders")
	assert.Equal(t, 2, insights.SimilarQueries)
}

func TestMemory_SkillPromotionAt51(t *testing.T) {
	_, profiles, svc := newMemoryService()
	ctx := context.Background()

	profile := models.NewUserProfile("u1")
	profile.SuccessCount = 49
	require.NoError(t, profiles.Upsert(ctx, profile))

	svc.RecordTurn(ctx, successfulTurn("u1", "orders"))
	got, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.SuccessCount)
	assert.Equal(t, models.SkillBeginner, got.SkillLevel, "the 50th success does not promote")

	svc.RecordTurn(ctx, successfulTurn("u1", "orders"))
	got, err = profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 51, got.SuccessCount)
	assert.Equal(t, models.SkillIntermediate, got.SkillLevel, "the 51st success promotes")
}

func TestMemory_SkillPromotionAt151(t *testing.T) {
	_, profiles, svc := newMemoryService()
	ctx := context.Background()

	profile := models.NewUserProfile("u1")
	profile.SuccessCount = 150
	profile.SkillLevel = models.SkillIntermediate
	require.NoError(t, profiles.Upsert(ctx, profile))

	svc.RecordTurn(ctx, successfulTurn("u1", "orders"))
	got, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SkillAdvanced, got.SkillLevel)
}

func TestMemory_FailuresRecordMistakesOnce(t *testing.T) {
	_, profiles, svc := newMemoryService()
	ctx := context.Background()

	failed := &models.MemoryRecord{
		UserID:       "u1",
		OriginalText: "broken request",
		QueryKind:    models.QueryKindRead,
		Succeeded:    false,
	}
	svc.RecordTurn(ctx, failed)
	svc.RecordTurn(ctx, &models.MemoryRecord{
		UserID:       "u1",
		OriginalText: "broken request",
		QueryKind:    models.QueryKindRead,
		Succeeded:    false,
	})

	got, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.CommonMistakes, 1, "the same mistake label is recorded once")
	assert.Equal(t, 0, got.SuccessCount)
}

func TestMemory_FrequentCollectionsBounded(t *testing.T) {
	_, profiles, svc := newMemoryService()
	ctx := context.Background()

	targets := []string{"a1", "b2", "c3", "d4", "e5", "f6", "g7", "h8", "i9", "j10", "k11"}
	for _, target := range targets {
		svc.RecordTurn(ctx, successfulTurn("u1", target))
	}

	got, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.FrequentCollections, 10)
	assert.NotContains(t, got.FrequentCollections, "a1", "the oldest favorite is evicted")
	assert.Contains(t, got.FrequentCollections, "k11")
}

func TestMemory_WriteFailuresAreSwallowed(t *testing.T) {
	records := &fakeMemoryRepo{insertErr: errors.New("state store down")}
	svc := NewMemoryService(records, newFakeProfileRepo(), zap.NewNop())

	// Must not panic and must not propagate the failure.
	svc.RecordTurn(context.Background(), successfulTurn("u1", "orders"))
}

func TestMemory_Feedback(t *testing.T) {
	records, _, svc := newMemoryService()
	ctx := context.Background()

	rec := successfulTurn("u1", "orders")
	rec.QueryID = "q-42"
	svc.RecordTurn(ctx, rec)

	require.NoError(t, svc.Feedback(ctx, "u1", "q-42", models.FeedbackPositive))
	assert.Equal(t, models.FeedbackPositive, records.records[0].Feedback)

	require.Error(t, svc.Feedback(ctx, "u1", "missing", models.FeedbackPositive))
	require.Error(t, svc.Feedback(ctx, "someone-else", "q-42", models.FeedbackPositive),
		"feedback on another user's record is rejected")
}

func TestMemory_Suggestions(t *testing.T) {
	_, profiles, svc := newMemoryService()
	ctx := context.Background()

	profile := models.NewUserProfile("u1")
	profile.FrequentCollections = []string{"orders", "users"}
	require.NoError(t, profiles.Upsert(ctx, profile))

	got := svc.Suggestions(ctx, "u1", []string{CapTopSellingProducts, CapRecordCounts})
	assert.Contains(t, got, "Show me the latest orders")
	assert.Contains(t, got, "What are the top selling products?")
	assert.LessOrEqual(t, len(got), 4)
}

func TestPatternLabel(t *testing.T) {
	assert.Equal(t, "read:order", PatternLabel(models.QueryKindRead, "order"))
	assert.Equal(t, "count:misc", PatternLabel(models.QueryKindCount, ""))
}
