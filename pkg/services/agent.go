package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// AgentService is the execution pipeline for one user turn: resolve the
// endpoint, load the schema, plan, execute under the safety gate, shape the
// response and record the turn.
type AgentService interface {
	// HandleQuery drives one turn. A returned error is always a framing
	// error (bad input, unsupported endpoint, connection failure); failures
	// inside the pipeline surface as a success shell whose message and
	// trace explain what went wrong.
	HandleQuery(ctx context.Context, req *models.AgentRequest) (*models.AgentResponse, error)

	// Feedback attaches thumbs up/down to a past turn.
	Feedback(ctx context.Context, userID string, req *models.FeedbackRequest) error

	// Status describes the engine's capabilities.
	Status() *models.StatusResponse
}

type agentService struct {
	connections *datasource.Manager
	schemas     SchemaRegistry
	profiler    *CapabilityProfiler
	matcher     *KeywordMatcher
	memory      MemoryService
	planner     Planner
	executor    Executor
	shaper      ResponseShaper
	version     string
	logger      *zap.Logger
}

// NewAgentService wires the execution pipeline.
func NewAgentService(
	connections *datasource.Manager,
	schemas SchemaRegistry,
	profiler *CapabilityProfiler,
	matcher *KeywordMatcher,
	memory MemoryService,
	planner Planner,
	executor Executor,
	shaper ResponseShaper,
	version string,
	logger *zap.Logger,
) AgentService {
	return &agentService{
		connections: connections,
		schemas:     schemas,
		profiler:    profiler,
		matcher:     matcher,
		memory:      memory,
		planner:     planner,
		executor:    executor,
		shaper:      shaper,
		version:     version,
		logger:      logger.Named("agent"),
	}
}

var _ AgentService = (*agentService)(nil)

func (s *agentService) HandleQuery(ctx context.Context, req *models.AgentRequest) (*models.AgentResponse, error) {
	started := time.Now()
	queryID := uuid.NewString()

	// Small talk is answered before any validation that assumes a database
	// is involved.
	if reply, ok := ConversationalReply(req.Query); ok {
		return s.handleConversation(ctx, req, queryID, reply, started), nil
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	endpoint, err := models.NewDatabaseEndpoint(req.DBURL, req.DBType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedEndpoint, err.Error(), err)
	}

	handle, err := s.connections.Acquire(ctx, *endpoint)
	if err != nil {
		return nil, err
	}
	dbKey := endpoint.DBKey()

	schemaJSON, err := s.schemas.GetOrBuild(ctx, handle, req.RefreshSchema)
	if err != nil {
		s.logger.Warn("schema unavailable, continuing without it",
			zap.String("db_key", dbKey), zap.Error(err))
		schemaJSON = "[]"
	}

	capabilities := s.profiler.Profile(endpoint.Kind, schemaJSON)
	candidates := s.matcher.Match(endpoint.Kind, schemaJSON, req.Query)
	insights := s.memory.Insights(ctx, req.UserID, dbKey, req.Query)

	plan := s.planner.Plan(ctx, PlanInput{
		Query:             req.Query,
		SchemaJSON:        schemaJSON,
		Kind:              endpoint.Kind,
		Capabilities:      capabilities,
		KeywordCandidates: candidates,
		Insights:          insights,
	})
	if plan.Conversational {
		return s.handleConversation(ctx, req, queryID, plan.Reply, started), nil
	}

	execution := s.executor.Execute(ctx, ExecutionInput{
		Plan:       plan,
		Handle:     handle,
		SchemaJSON: schemaJSON,
		Candidates: candidates,
		DryRun:     req.DryRun,
	})

	var suggestions []string
	if req.Insight {
		suggestions = s.memory.Suggestions(ctx, req.UserID, capabilities)
	}

	resp := s.shaper.Shape(ctx, ShapeInput{
		Query:           req.Query,
		QueryID:         queryID,
		Insight:         req.Insight,
		DryRun:          req.DryRun,
		Plan:            plan,
		Execution:       execution,
		Insights:        insights,
		Suggestions:     suggestions,
		ExecutionMillis: time.Since(started).Milliseconds(),
	})

	if !req.DryRun {
		s.memory.RecordTurn(ctx, &models.MemoryRecord{
			QueryID:          queryID,
			UserID:           req.UserID,
			DBKey:            dbKey,
			OriginalText:     req.Query,
			QueryDescription: describeExecution(execution),
			QueryKind:        execution.QueryKind,
			Targets:          execution.Targets,
			ExecutionMillis:  time.Since(started).Milliseconds(),
			ResultCount:      execution.ResultCount,
			Succeeded:        execution.Succeeded,
		})
	}

	return resp, nil
}

// handleConversation answers small talk: no database access, but the turn
// still lands in memory as a conversation record.
func (s *agentService) handleConversation(ctx context.Context, req *models.AgentRequest, queryID, reply string, started time.Time) *models.AgentResponse {
	plan := &models.Plan{Conversational: true, Reply: reply}

	resp := s.shaper.Shape(ctx, ShapeInput{
		Query:           req.Query,
		QueryID:         queryID,
		Insight:         req.Insight,
		Plan:            plan,
		ExecutionMillis: time.Since(started).Milliseconds(),
	})

	s.memory.RecordTurn(ctx, &models.MemoryRecord{
		QueryID:          queryID,
		UserID:           req.UserID,
		OriginalText:     req.Query,
		QueryDescription: "conversational reply",
		QueryKind:        models.QueryKindConversation,
		Targets:          []string{"n/a"},
		ExecutionMillis:  time.Since(started).Milliseconds(),
		Succeeded:        true,
	})
	return resp
}

func (s *agentService) Feedback(ctx context.Context, userID string, req *models.FeedbackRequest) error {
	feedback, ok := models.ParseFeedback(req.Feedback)
	if !ok {
		return apperrors.Newf(apperrors.KindBadInput, "feedback must be positive or negative, got %q", req.Feedback)
	}
	if req.QueryID == "" {
		return apperrors.New(apperrors.KindBadInput, "queryId is required")
	}
	return s.memory.Feedback(ctx, userID, req.QueryID, feedback)
}

func (s *agentService) Status() *models.StatusResponse {
	return &models.StatusResponse{
		Version: s.version,
		Databases: []string{
			string(models.KindMongo),
			string(models.KindPostgres),
			string(models.KindMySQL),
		},
		Capabilities: []string{
			"natural_language_queries",
			"multi_step_plans",
			"in_process_statistics",
			"secondary_analysis",
			"dry_run_previews",
			"per_user_memory",
			"schema_introspection",
		},
	}
}

// validateRequest enforces the request-framing rules: query length bounds
// and a usable endpoint description.
func validateRequest(req *models.AgentRequest) error {
	n := len(req.Query)
	if n < models.MinQueryLength || n > models.MaxQueryLength {
		return apperrors.Newf(apperrors.KindBadInput,
			"query must be between %d and %d characters, got %d",
			models.MinQueryLength, models.MaxQueryLength, n)
	}
	if req.DBURL == "" {
		return apperrors.New(apperrors.KindBadInput, "dbUrl is required")
	}
	if req.UserID == "" {
		return apperrors.New(apperrors.KindBadInput, "user identity is missing")
	}
	return nil
}

// describeExecution summarizes the executed queries for the memory record.
func describeExecution(exec *ExecutionResult) string {
	if len(exec.ExecutedQueries) == 0 {
		return "no query executed"
	}
	descriptions := make([]string, 0, len(exec.ExecutedQueries))
	for _, q := range exec.ExecutedQueries {
		if q.Description != "" {
			descriptions = append(descriptions, q.Description)
		}
	}
	if len(descriptions) == 0 {
		return "query executed"
	}
	out := descriptions[0]
	for _, d := range descriptions[1:] {
		out += "; " + d
	}
	return out
}
