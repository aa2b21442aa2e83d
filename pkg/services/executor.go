package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/llm"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/prompts"
	"github.com/datapilot-ai/datapilot-engine/pkg/safety"
)

const (
	// previewLimit bounds per-step row previews in the trace.
	previewLimit = 10
	// analysisRowLimit bounds rows sent to the oracle per referenced step.
	analysisRowLimit = 20
)

// Executor runs a plan step by step. Step failures are captured in the
// result and never abort the remaining steps; only the framing around the
// executor (connection, input validation) may abort a request.
type Executor interface {
	Execute(ctx context.Context, in ExecutionInput) *ExecutionResult
}

// ExecutionInput carries one plan and its execution context.
type ExecutionInput struct {
	Plan       *models.Plan
	Handle     *datasource.Handle
	SchemaJSON string
	Candidates []string
	// DryRun produces the gated queries without any database I/O.
	DryRun bool
}

// ExecutionResult aggregates the per-step outcomes of one plan.
type ExecutionResult struct {
	Steps           []models.StepResult
	ExecutedQueries []models.ExecutedQuery

	// Data is the final selection: the last successful dbQuery result when
	// one exists, otherwise the last step's output. Nil for dry runs.
	Data any

	// DataRetrieved reports whether any database rows came back.
	DataRetrieved bool
	// ResultCount is the row count of the final dbQuery result.
	ResultCount int
	// Succeeded reports whether every step completed.
	Succeeded bool
	// QueryKind classifies the turn by its last executed query.
	QueryKind models.QueryKind
	// Targets lists the collections/tables the turn touched.
	Targets []string
}

type executor struct {
	synthesizer  QuerySynthesizer
	gate         *safety.Gate
	oracle       llm.Oracle // nil disables secondaryAnalysis synthesis
	queryTimeout time.Duration
	defaultCap   int
	logger       *zap.Logger
}

// NewExecutor creates an executor. oracle may be nil.
func NewExecutor(synthesizer QuerySynthesizer, gate *safety.Gate, oracle llm.Oracle, queryTimeout time.Duration, defaultRowCap int, logger *zap.Logger) Executor {
	return &executor{
		synthesizer:  synthesizer,
		gate:         gate,
		oracle:       oracle,
		queryTimeout: queryTimeout,
		defaultCap:   defaultRowCap,
		logger:       logger.Named("executor"),
	}
}

var _ Executor = (*executor)(nil)

func (e *executor) Execute(ctx context.Context, in ExecutionInput) *ExecutionResult {
	result := &ExecutionResult{
		Succeeded: true,
		QueryKind: models.QueryKindRead,
	}

	// Full row sets per step, kept for computeStats and secondaryAnalysis.
	// The trace only ever carries previews.
	stepRows := make(map[int][]map[string]any)
	var lastQueryData any
	haveQueryData := false

	for i, step := range in.Plan.Steps {
		started := time.Now()
		var sr models.StepResult
		sr.Index = i
		sr.Kind = step.Kind

		switch step.Kind {
		case models.StepDBQuery:
			rows, output, err := e.runDBQuery(ctx, in, step, result)
			if err != nil {
				sr.OK = false
				sr.Error = err.Error()
				result.Succeeded = false
			} else {
				sr.OK = true
				sr.Output = output
				sr.Preview = previewRows(rows, previewLimit)
				sr.RowCount = len(rows)
				stepRows[i] = rows
				if !in.DryRun {
					lastQueryData = output
					haveQueryData = true
					result.ResultCount = len(rows)
					if len(rows) > 0 {
						result.DataRetrieved = true
					}
				}
			}

		case models.StepComputeStats:
			rows, ok := stepRows[step.OnStep]
			if !ok {
				sr.OK = false
				sr.Error = apperrors.Newf(apperrors.KindBadInput,
					"step %d produced no rows to analyze", step.OnStep).Error()
				result.Succeeded = false
			} else {
				sr.OK = true
				sr.Output = ComputeStats(rows, step.Ops)
			}

		case models.StepSecondaryAnalysis:
			analysis, err := e.runAnalysis(ctx, step, stepRows)
			if err != nil {
				sr.OK = false
				sr.Error = err.Error()
				result.Succeeded = false
			} else {
				sr.OK = true
				sr.Output = analysis
			}
		}

		sr.Millis = time.Since(started).Milliseconds()
		result.Steps = append(result.Steps, sr)
	}

	if haveQueryData {
		result.Data = lastQueryData
	} else if n := len(result.Steps); n > 0 && !in.DryRun {
		last := result.Steps[n-1]
		if last.OK {
			result.Data = last.Output
		}
	}
	return result
}

// runDBQuery synthesizes, gates and (unless dry-run) executes one query.
// The gated query is recorded even on execution failure so the trace shows
// what was attempted.
func (e *executor) runDBQuery(ctx context.Context, in ExecutionInput, step models.PlanStep, result *ExecutionResult) ([]map[string]any, any, error) {
	q, err := e.synthesizer.Synthesize(ctx, SynthesisInput{
		SubQuery:   step.SubQuery,
		SchemaJSON: in.SchemaJSON,
		Kind:       in.Handle.Endpoint.Kind,
		RowCap:     e.defaultCap,
		Candidates: in.Candidates,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := e.gate.Check(q); err != nil {
		result.QueryKind = q.MemoryKind()
		result.Targets = mergeTargets(result.Targets, q.Targets())
		return nil, nil, err
	}

	result.ExecutedQueries = append(result.ExecutedQueries, *q)
	result.QueryKind = q.MemoryKind()
	result.Targets = mergeTargets(result.Targets, q.Targets())

	if in.DryRun {
		return nil, nil, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	res, err := in.Handle.Dialect().Execute(execCtx, in.Handle, q)
	if err != nil {
		return nil, nil, classifyExecutionError(err)
	}

	e.logger.Debug("step query executed",
		zap.String("kind", string(q.Kind)),
		zap.Int("rows", res.RowCount),
		zap.Int64("rows_affected", res.RowsAffected))

	if q.IsWrite() {
		return res.Rows, map[string]any{"rowsAffected": res.RowsAffected}, nil
	}
	return res.Rows, res.Rows, nil
}

// runAnalysis sends bounded previews of the referenced steps to the oracle
// and returns its plain-language reading. Without an oracle the step fails;
// analysis has no deterministic fallback worth shipping.
func (e *executor) runAnalysis(ctx context.Context, step models.PlanStep, stepRows map[int][]map[string]any) (string, error) {
	if e.oracle == nil {
		return "", apperrors.New(apperrors.KindPlanParseFailed,
			"secondary analysis requires a language model and none is configured")
	}

	previews := make(map[int][]map[string]any, len(step.OnSteps))
	for _, ref := range step.OnSteps {
		if rows, ok := stepRows[ref]; ok {
			previews[ref] = previewRows(rows, analysisRowLimit)
		}
	}
	if len(previews) == 0 {
		return "", apperrors.New(apperrors.KindBadInput,
			"no referenced step produced rows to analyze")
	}

	prompt := prompts.BuildAnalysisPrompt(step.Instructions, previews)
	result, err := e.oracle.GenerateResponse(ctx, prompt, prompts.AnalysisSystem, -1)
	if err != nil {
		return "", classifyExecutionError(err)
	}
	return result.Content, nil
}

// classifyExecutionError folds driver and oracle failures into the
// taxonomy: deadline hits become Timeout, already-classified errors pass
// through, everything else is a DbError.
func classifyExecutionError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout, "statement exceeded its deadline", err)
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.KindDBError, fmt.Sprintf("database rejected the query: %v", err), err)
}

func previewRows(rows []map[string]any, limit int) []map[string]any {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}

func mergeTargets(existing, more []string) []string {
	for _, t := range more {
		found := false
		for _, have := range existing {
			if have == t {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, t)
		}
	}
	return existing
}
