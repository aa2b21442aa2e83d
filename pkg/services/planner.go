package services

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/jsonutil"
	"github.com/datapilot-ai/datapilot-engine/pkg/llm"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/prompts"
)

// Conversational patterns short-circuit planning entirely: the turn is
// answered politely without any database access.
var conversationalPatterns = []struct {
	pattern *regexp.Regexp
	reply   string
}{
	{regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening))\s*[.!]*\s*$`),
		"Hello! Ask me anything about your database and I'll look it up for you."},
	{regexp.MustCompile(`(?i)^\s*(thanks|thank you|thx|ty)\s*[.!]*\s*$`),
		"You're welcome! Let me know if there's anything else you want to know about your data."},
	{regexp.MustCompile(`(?i)^\s*how are you\s*[?.!]*\s*$`),
		"I'm doing well, thanks for asking. What would you like to know about your database?"},
	{regexp.MustCompile(`(?i)^\s*(bye|goodbye|see you)\s*[.!]*\s*$`),
		"Goodbye! Come back whenever you have questions about your data."},
	{regexp.MustCompile(`(?i)^\s*(what can you do|help)\s*[?.!]*\s*$`),
		"I can answer questions about your database: look up records, count things, compute statistics and summarize results. Just ask in plain language."},
}

// Planner turns a user question into an ordered plan. It never executes
// anything and it never fails: when the oracle's output is unusable the
// deterministic heuristic plan takes over.
type Planner interface {
	Plan(ctx context.Context, in PlanInput) *models.Plan
}

// PlanInput carries the per-turn context for planning.
type PlanInput struct {
	Query             string
	SchemaJSON        string
	Kind              models.DatabaseKind
	Capabilities      []string
	KeywordCandidates []string
	Insights          *models.MemoryInsights
	RecentQueries     []string
}

type planner struct {
	oracle llm.Oracle // nil means heuristics only
	logger *zap.Logger
}

// NewPlanner creates a planner. oracle may be nil.
func NewPlanner(oracle llm.Oracle, logger *zap.Logger) Planner {
	return &planner{
		oracle: oracle,
		logger: logger.Named("planner"),
	}
}

var _ Planner = (*planner)(nil)

func (p *planner) Plan(ctx context.Context, in PlanInput) *models.Plan {
	if reply, ok := ConversationalReply(in.Query); ok {
		return &models.Plan{Conversational: true, Reply: reply}
	}

	if p.oracle != nil {
		if plan, err := p.planWithOracle(ctx, in); err == nil {
			return plan
		} else {
			p.logger.Warn("plan synthesis failed, falling back to heuristic plan",
				zap.String("kind", string(in.Kind)),
				zap.Error(err))
		}
	}

	return heuristicPlan(in.Query)
}

// planWithOracle prompts the model under the strict JSON contract and
// validates the parsed plan. Any deviation is a PlanParseFailed condition
// handled by the caller's fallback.
func (p *planner) planWithOracle(ctx context.Context, in PlanInput) (*models.Plan, error) {
	prompt := prompts.BuildPlannerPrompt(prompts.PlannerInput{
		Query:             in.Query,
		SchemaJSON:        in.SchemaJSON,
		Kind:              in.Kind,
		Capabilities:      in.Capabilities,
		KeywordCandidates: in.KeywordCandidates,
		Insights:          in.Insights,
		RecentQueries:     in.RecentQueries,
	})

	result, err := p.oracle.GenerateResponse(ctx, prompt, prompts.PlannerSystem, -1)
	if err != nil {
		return nil, err
	}

	plan, err := jsonutil.ParseModelJSON[models.Plan](result.Content)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// heuristicPlan is the deterministic fallback: a single dbQuery step whose
// sub-query is the user's own words.
func heuristicPlan(query string) *models.Plan {
	return &models.Plan{
		Steps: []models.PlanStep{{Kind: models.StepDBQuery, SubQuery: query}},
	}
}

// ConversationalReply returns the canned reply for small-talk input, and
// whether the input was small talk at all.
func ConversationalReply(text string) (string, bool) {
	for _, c := range conversationalPatterns {
		if c.pattern.MatchString(text) {
			return c.reply, true
		}
	}
	return "", false
}
