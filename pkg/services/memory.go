package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/repositories"
)

// frequentCollectionLimit bounds how many favorites a profile carries.
const frequentCollectionLimit = 10

// MemoryService records executed turns and serves per-user insights back to
// the planner and the response shaper. Write failures are logged and
// swallowed; memory must never mask a user-visible response.
type MemoryService interface {
	// Insights summarizes what is known about the user for one upcoming
	// turn. Always returns a usable value, even for first-time users.
	Insights(ctx context.Context, userID, dbKey, userText string) *models.MemoryInsights

	// RecordTurn persists the turn and folds it into the user's profile.
	RecordTurn(ctx context.Context, rec *models.MemoryRecord)

	// Feedback attaches thumbs up/down to a past turn owned by the user.
	Feedback(ctx context.Context, userID, queryID, feedback string) error

	// Suggestions proposes follow-up queries from the profile and the
	// database's capability labels.
	Suggestions(ctx context.Context, userID string, capabilities []string) []string
}

type memoryService struct {
	records  repositories.MemoryRepository
	profiles repositories.ProfileRepository
	logger   *zap.Logger
}

// NewMemoryService creates a memory service.
func NewMemoryService(records repositories.MemoryRepository, profiles repositories.ProfileRepository, logger *zap.Logger) MemoryService {
	return &memoryService{
		records:  records,
		profiles: profiles,
		logger:   logger.Named("memory"),
	}
}

var _ MemoryService = (*memoryService)(nil)

func (s *memoryService) Insights(ctx context.Context, userID, dbKey, userText string) *models.MemoryInsights {
	insights := &models.MemoryInsights{
		SkillLevel:      models.SkillBeginner,
		PreferredDetail: models.DetailBrief,
		PatternLabel:    PatternLabel(models.QueryKindRead, dominantToken(userText)),
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
	} else if profile != nil {
		insights.SkillLevel = profile.SkillLevel
		insights.PreferredDetail = profile.PreferredDetail
		insights.FrequentCollections = profile.FrequentCollections
	}

	similar, err := s.records.CountSimilar(ctx, userID, dbKey, insights.PatternLabel)
	if err != nil {
		s.logger.Warn("similar-query count failed", zap.String("user_id", userID), zap.Error(err))
	} else {
		insights.SimilarQueries = int(similar)
	}

	return insights
}

func (s *memoryService) RecordTurn(ctx context.Context, rec *models.MemoryRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.PatternLabel == "" {
		rec.PatternLabel = PatternLabel(rec.QueryKind, dominantToken(rec.OriginalText))
	}
	if len(rec.Targets) == 0 {
		rec.Targets = []string{"n/a"}
	}

	if err := s.records.Insert(ctx, rec); err != nil {
		s.logger.Warn("failed to record turn", zap.String("user_id", rec.UserID), zap.Error(err))
		return
	}

	if err := s.updateProfile(ctx, rec); err != nil {
		s.logger.Warn("failed to update profile", zap.String("user_id", rec.UserID), zap.Error(err))
	}
}

// updateProfile folds one turn into the user's profile: pattern counters,
// frequent collections, success-driven skill promotion, and the mistake list
// on failures.
func (s *memoryService) updateProfile(ctx context.Context, rec *models.MemoryRecord) error {
	profile, err := s.profiles.Get(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = models.NewUserProfile(rec.UserID)
	}

	bumpPatternCounter(profile, rec.PatternLabel, rec.Timestamp)

	if rec.Succeeded {
		profile.SuccessCount++
		profile.SkillLevel = models.SkillForSuccessCount(profile.SuccessCount)
		for _, target := range rec.Targets {
			if target != "n/a" {
				addFrequentCollection(profile, target)
			}
		}
	} else {
		addCommonMistake(profile, rec.PatternLabel)
	}

	return s.profiles.Upsert(ctx, profile)
}

func (s *memoryService) Feedback(ctx context.Context, userID, queryID, feedback string) error {
	return s.records.SetFeedback(ctx, userID, queryID, feedback)
}

func (s *memoryService) Suggestions(ctx context.Context, userID string, capabilities []string) []string {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
	}

	var suggestions []string
	if profile != nil {
		for _, coll := range profile.FrequentCollections {
			suggestions = append(suggestions, fmt.Sprintf("Show me the latest %s", coll))
			if len(suggestions) >= 2 {
				break
			}
		}
	}
	for _, capability := range capabilities {
		switch capability {
		case CapTopSellingProducts:
			suggestions = append(suggestions, "What are the top selling products?")
		case CapRevenueOverTime:
			suggestions = append(suggestions, "How did revenue develop over the last 30 days?")
		case CapActivityOverTime:
			suggestions = append(suggestions, "How much activity was there in the last 7 days?")
		case CapInventoryLevels:
			suggestions = append(suggestions, "Which items are low on stock?")
		}
		if len(suggestions) >= 4 {
			break
		}
	}
	return suggestions
}

// PatternLabel classifies a turn as "<kind>:<entity>" for counting similar
// queries. The entity part is the dominant token of the user text, or "misc"
// when nothing usable survives tokenization.
func PatternLabel(kind models.QueryKind, entity string) string {
	if entity == "" {
		entity = "misc"
	}
	return string(kind) + ":" + entity
}

// dominantToken picks the first meaningful token of the text as the pattern
// entity. Crude but stable, which is what counting needs.
func dominantToken(text string) string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

func bumpPatternCounter(profile *models.UserProfile, label string, at time.Time) {
	for i := range profile.PatternCounters {
		if profile.PatternCounters[i].Label == label {
			profile.PatternCounters[i].Count++
			profile.PatternCounters[i].LastUsed = at
			return
		}
	}
	profile.PatternCounters = append(profile.PatternCounters, models.PatternCounter{
		Label:    label,
		Count:    1,
		LastUsed: at,
	})
}

func addFrequentCollection(profile *models.UserProfile, name string) {
	for _, existing := range profile.FrequentCollections {
		if existing == name {
			return
		}
	}
	profile.FrequentCollections = append(profile.FrequentCollections, name)
	if len(profile.FrequentCollections) > frequentCollectionLimit {
		profile.FrequentCollections = profile.FrequentCollections[1:]
	}
}

func addCommonMistake(profile *models.UserProfile, label string) {
	for _, existing := range profile.CommonMistakes {
		if existing == label {
			return
		}
	}
	profile.CommonMistakes = append(profile.CommonMistakes, label)
}
