package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/llm"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/prompts"
	"github.com/datapilot-ai/datapilot-engine/pkg/safety"
)

// ResponseShaper assembles the reply for one turn: minimal mode carries
// data/message/success only, insight mode adds the plan, trace, executed
// queries, memory insights and suggestions.
type ResponseShaper interface {
	Shape(ctx context.Context, in ShapeInput) *models.AgentResponse
}

// ShapeInput carries everything one response is built from.
type ShapeInput struct {
	Query           string
	QueryID         string
	Insight         bool
	DryRun          bool
	Plan            *models.Plan
	Execution       *ExecutionResult
	Insights        *models.MemoryInsights
	Suggestions     []string
	ExecutionMillis int64
}

type responseShaper struct {
	oracle    llm.Oracle // nil means deterministic messages only
	redactSQL bool
	logger    *zap.Logger
}

// NewResponseShaper creates a shaper. oracle may be nil.
func NewResponseShaper(oracle llm.Oracle, redactSQL bool, logger *zap.Logger) ResponseShaper {
	return &responseShaper{
		oracle:    oracle,
		redactSQL: redactSQL,
		logger:    logger.Named("shaper"),
	}
}

var _ ResponseShaper = (*responseShaper)(nil)

func (s *responseShaper) Shape(ctx context.Context, in ShapeInput) *models.AgentResponse {
	resp := &models.AgentResponse{
		Success: true,
		Message: s.composeMessage(ctx, in),
	}
	if in.Execution != nil && !in.DryRun {
		resp.Data = in.Execution.Data
	}

	if !in.Insight {
		return resp
	}

	resp.Query = in.Query
	resp.QueryID = in.QueryID
	resp.Plan = in.Plan
	resp.MemoryInsights = in.Insights
	resp.Suggestions = in.Suggestions
	resp.ExecutionMillis = in.ExecutionMillis
	if in.Execution != nil {
		resp.Trace = in.Execution.Steps
		resp.ExecutedQueries = s.redactQueries(in.Execution.ExecutedQueries)
	}
	return resp
}

// composeMessage produces the natural-language reply: the canned reply for
// conversational turns, the oracle summary when available, the
// deterministic default otherwise.
func (s *responseShaper) composeMessage(ctx context.Context, in ShapeInput) string {
	if in.Plan != nil && in.Plan.Conversational {
		return in.Plan.Reply
	}
	if in.DryRun {
		return "Preview generated successfully"
	}
	if in.Execution == nil {
		return defaultMessage(nil)
	}

	if s.oracle != nil && in.Execution.DataRetrieved {
		if msg := s.summarize(ctx, in); msg != "" {
			return msg
		}
	}
	return defaultMessage(in.Execution)
}

func (s *responseShaper) summarize(ctx context.Context, in ShapeInput) string {
	var rows []map[string]any
	for i := len(in.Execution.Steps) - 1; i >= 0; i-- {
		step := in.Execution.Steps[i]
		if step.OK && len(step.Preview) > 0 {
			rows = step.Preview
			break
		}
	}

	prompt := prompts.BuildSummaryPrompt(in.Query, rows, in.Execution.ResultCount)
	result, err := s.oracle.GenerateResponse(ctx, prompt, prompts.SummarySystem, -1)
	if err != nil {
		s.logger.Warn("summary generation failed, using deterministic message", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(result.Content)
}

// defaultMessage is the deterministic fallback message for a turn.
func defaultMessage(exec *ExecutionResult) string {
	if exec == nil {
		return "Done."
	}
	if !exec.Succeeded {
		for _, step := range exec.Steps {
			if !step.OK {
				return fmt.Sprintf("Step %d failed: %s", step.Index+1, step.Error)
			}
		}
	}
	if exec.QueryKind == models.QueryKindInsert || exec.QueryKind == models.QueryKindUpdate || exec.QueryKind == models.QueryKindDelete {
		return "Write operation completed successfully"
	}
	return fmt.Sprintf("Retrieved %d record(s)", exec.ResultCount)
}

// redactQueries applies the SQL redaction flag to the user-facing copies of
// the executed queries. Parameter values are never echoed either way.
func (s *responseShaper) redactQueries(queries []models.ExecutedQuery) []models.ExecutedQuery {
	out := make([]models.ExecutedQuery, len(queries))
	for i, q := range queries {
		q.Parameters = nil
		if s.redactSQL && q.SQL != "" {
			q.SQL = safety.RedactedSQL
		}
		out[i] = q
	}
	return out
}
