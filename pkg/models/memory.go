package models

import (
	"time"
)

// Feedback values a user can attach to a past turn.
const (
	FeedbackPositive = "+"
	FeedbackNegative = "-"
)

// ParseFeedback normalizes user-supplied feedback ("+", "positive",
// "thumbs_up", ...) to the canonical form.
func ParseFeedback(s string) (string, bool) {
	switch s {
	case "+", "positive", "up", "thumbs_up", "good":
		return FeedbackPositive, true
	case "-", "negative", "down", "thumbs_down", "bad":
		return FeedbackNegative, true
	default:
		return "", false
	}
}

// MemoryRecord captures one executed agent turn. Records are immutable
// after write except for the Feedback field.
type MemoryRecord struct {
	ID               string    `bson:"_id" json:"id"`
	QueryID          string    `bson:"queryId" json:"queryId"`
	UserID           string    `bson:"userId" json:"userId"`
	DBKey            string    `bson:"dbKey" json:"dbKey"`
	OriginalText     string    `bson:"originalText" json:"originalText"`
	QueryDescription string    `bson:"queryDescription" json:"queryDescription"`
	QueryKind        QueryKind `bson:"queryKind" json:"queryKind"`
	Targets          []string  `bson:"targets" json:"targets"`
	ExecutionMillis  int64     `bson:"executionMillis" json:"executionMillis"`
	ResultCount      int       `bson:"resultCount" json:"resultCount"`
	Succeeded        bool      `bson:"succeeded" json:"succeeded"`
	Feedback         string    `bson:"feedback,omitempty" json:"feedback,omitempty"`
	ContextTags      []string  `bson:"contextTags,omitempty" json:"contextTags,omitempty"`
	PatternLabel     string    `bson:"patternLabel" json:"patternLabel"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`
}

// SkillLevel ranks how experienced a user is with the agent.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

// Skill promotion thresholds: the promotion fires when the success count
// exceeds the threshold, i.e. on the 51st and 151st successful turn.
const (
	IntermediateThreshold = 50
	AdvancedThreshold     = 150
)

// SkillForSuccessCount returns the skill level implied by a success count.
func SkillForSuccessCount(n int) SkillLevel {
	switch {
	case n > AdvancedThreshold:
		return SkillAdvanced
	case n > IntermediateThreshold:
		return SkillIntermediate
	default:
		return SkillBeginner
	}
}

// Detail preferences for response verbosity.
const (
	DetailBrief   = "brief"
	DetailVerbose = "verbose"
)

// PatternCounter tracks how often a user repeats a query pattern.
type PatternCounter struct {
	Label    string    `bson:"label" json:"label"`
	Count    int       `bson:"count" json:"count"`
	LastUsed time.Time `bson:"lastUsed" json:"lastUsed"`
}

// UserProfile aggregates per-user behavioral state driving suggestions and
// skill-level progression. One per user.
type UserProfile struct {
	UserID              string           `bson:"_id" json:"userId"`
	FrequentCollections []string         `bson:"frequentCollections,omitempty" json:"frequentCollections,omitempty"`
	PatternCounters     []PatternCounter `bson:"patternCounters,omitempty" json:"patternCounters,omitempty"`
	SkillLevel          SkillLevel       `bson:"skillLevel" json:"skillLevel"`
	PreferredDetail     string           `bson:"preferredDetail" json:"preferredDetail"`
	CommonMistakes      []string         `bson:"commonMistakes,omitempty" json:"commonMistakes,omitempty"`
	SuccessCount        int              `bson:"successCount" json:"successCount"`
	UpdatedAt           time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// NewUserProfile returns the zero-state profile for a first-time user.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:          userID,
		SkillLevel:      SkillBeginner,
		PreferredDetail: DetailBrief,
	}
}

// MemoryInsights summarizes what the memory store knows about a user for
// one turn. Attached to verbose responses and fed to the planner.
type MemoryInsights struct {
	SimilarQueries      int        `json:"similarQueries"`
	SkillLevel          SkillLevel `json:"skillLevel"`
	PatternLabel        string     `json:"patternLabel,omitempty"`
	PreferredDetail     string     `json:"preferredDetail,omitempty"`
	FrequentCollections []string   `json:"frequentCollections,omitempty"`
}
