package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/safety"
)

func testHandle(kind models.DatabaseKind) *datasource.Handle {
	return &datasource.Handle{Endpoint: models.DatabaseEndpoint{Kind: kind}}
}

func testExecutor(synth QuerySynthesizer) Executor {
	gate := safety.NewGate(1000, zap.NewNop())
	return NewExecutor(synth, gate, nil, 15*time.Second, 1000, zap.NewNop())
}

func TestExecutor_DryRunRecordsGatedQueries(t *testing.T) {
	synth := &stubSynthesizer{query: &models.ExecutedQuery{
		Kind:       models.KindMongo,
		Operation:  models.OpFind,
		Collection: "users",
		Filter:     map[string]any{},
	}}
	e := testExecutor(synth)

	plan := &models.Plan{Steps: []models.PlanStep{
		{Kind: models.StepDBQuery, SubQuery: "list users"},
	}}

	result := e.Execute(context.Background(), ExecutionInput{
		Plan:   plan,
		Handle: testHandle(models.KindMongo),
		DryRun: true,
	})

	require.True(t, result.Succeeded)
	require.Len(t, result.ExecutedQueries, 1)
	assert.Equal(t, 1000, result.ExecutedQueries[0].Limit, "the row cap is applied even on dry runs")
	assert.Nil(t, result.Data)
	assert.False(t, result.DataRetrieved)
	assert.Equal(t, models.QueryKindRead, result.QueryKind)
	assert.Equal(t, []string{"users"}, result.Targets)
}

func TestExecutor_DryRunIsDeterministic(t *testing.T) {
	synth := &stubSynthesizer{query: &models.ExecutedQuery{
		Kind:       models.KindMongo,
		Operation:  models.OpFind,
		Collection: "orders",
		Filter:     map[string]any{},
	}}
	e := testExecutor(synth)

	plan := &models.Plan{Steps: []models.PlanStep{
		{Kind: models.StepDBQuery, SubQuery: "list orders"},
	}}
	in := ExecutionInput{Plan: plan, Handle: testHandle(models.KindMongo), DryRun: true}

	first := e.Execute(context.Background(), in)
	second := e.Execute(context.Background(), in)
	assert.Equal(t, first.ExecutedQueries, second.ExecutedQueries)
}

func TestExecutor_GateRejectionFailsStepNotRequest(t *testing.T) {
	synth := &stubSynthesizer{query: &models.ExecutedQuery{
		Kind: models.KindPostgres,
		SQL:  "DELETE FROM orders",
	}}
	e := testExecutor(synth)

	plan := &models.Plan{Steps: []models.PlanStep{
		{Kind: models.StepDBQuery, SubQuery: "delete everything"},
	}}

	result := e.Execute(context.Background(), ExecutionInput{
		Plan:   plan,
		Handle: testHandle(models.KindPostgres),
		DryRun: true,
	})

	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].OK)
	assert.Contains(t, result.Steps[0].Error, "SafetyRejected")
	assert.False(t, result.Succeeded)
	assert.Empty(t, result.ExecutedQueries, "rejected queries are never recorded as executed")
}

func TestExecutor_StepFailureDoesNotAbortLaterSteps(t *testing.T) {
	synth := &stubSynthesizer{query: &models.ExecutedQuery{
		Kind:       models.KindMongo,
		Operation:  models.OpFind,
		Collection: "users",
		Filter:     map[string]any{},
	}}
	e := testExecutor(synth)

	plan := &models.Plan{Steps: []models.PlanStep{
		{Kind: models.StepDBQuery, SubQuery: "list users"},
		{Kind: models.StepSecondaryAnalysis, OnSteps: []int{0}, Instructions: "explain the users"},
		{Kind: models.StepComputeStats, OnStep: 0, Ops: []models.StatsOp{{Name: models.StatsCount}}},
	}}

	result := e.Execute(context.Background(), ExecutionInput{
		Plan:   plan,
		Handle: testHandle(models.KindMongo),
		DryRun: true,
	})

	require.Len(t, result.Steps, 3)
	assert.True(t, result.Steps[0].OK)
	assert.False(t, result.Steps[1].OK, "secondary analysis fails without an oracle")
	assert.True(t, result.Steps[2].OK, "later steps still run after a failure")
	assert.False(t, result.Succeeded)
}

func TestExecutor_ComputeStatsOverDryRunRows(t *testing.T) {
	synth := &stubSynthesizer{query: &models.ExecutedQuery{
		Kind:       models.KindMongo,
		Operation:  models.OpFind,
		Collection: "users",
		Filter:     map[string]any{},
	}}
	e := testExecutor(synth)

	plan := &models.Plan{Steps: []models.PlanStep{
		{Kind: models.StepDBQuery, SubQuery: "list users"},
		{Kind: models.StepComputeStats, OnStep: 0, Ops: []models.StatsOp{{Name: models.StatsCount}}},
	}}

	result := e.Execute(context.Background(), ExecutionInput{
		Plan:   plan,
		Handle: testHandle(models.KindMongo),
		DryRun: true,
	})

	require.Len(t, result.Steps, 2)
	require.True(t, result.Steps[1].OK)
	stats := result.Steps[1].Output.(map[string]any)
	assert.Equal(t, 0, stats["count"], "dry runs produce no rows to count")
}

func TestExecutor_SynthesisFailureFailsStep(t *testing.T) {
	synth := &stubSynthesizer{err: assertableError("no target")}
	e := testExecutor(synth)

	plan := &models.Plan{Steps: []models.PlanStep{
		{Kind: models.StepDBQuery, SubQuery: "mystery"},
	}}

	result := e.Execute(context.Background(), ExecutionInput{
		Plan:   plan,
		Handle: testHandle(models.KindMongo),
		DryRun: true,
	})

	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].OK)
	assert.Equal(t, "no target", result.Steps[0].Error)
	assert.False(t, result.Succeeded)
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
