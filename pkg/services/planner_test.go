package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/llm"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func TestConversationalReply(t *testing.T) {
	tests := []struct {
		input        string
		conversation bool
	}{
		{"hi", true},
		{"Hello!", true},
		{"hey", true},
		{"good morning", true},
		{"thanks", true},
		{"Thank you.", true},
		{"how are you?", true},
		{"bye", true},
		{"what can you do", true},
		{"help", true},
		{"show me all users", false},
		{"hello everyone in the users table", false},
		{"count orders", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			reply, ok := ConversationalReply(tt.input)
			assert.Equal(t, tt.conversation, ok)
			if ok {
				assert.NotEmpty(t, reply)
			}
		})
	}
}

func TestPlanner_ConversationalShortCircuit(t *testing.T) {
	p := NewPlanner(nil, zap.NewNop())

	plan := p.Plan(context.Background(), PlanInput{Query: "hi"})
	require.True(t, plan.Conversational)
	assert.NotEmpty(t, plan.Reply)
	assert.Empty(t, plan.Steps)
}

func TestPlanner_HeuristicWithoutOracle(t *testing.T) {
	p := NewPlanner(nil, zap.NewNop())

	plan := p.Plan(context.Background(), PlanInput{Query: "show me all users"})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, models.StepDBQuery, plan.Steps[0].Kind)
	assert.Equal(t, "show me all users", plan.Steps[0].SubQuery)
	assert.False(t, plan.Conversational)
}

func TestPlanner_OraclePlanAccepted(t *testing.T) {
	oracle := llm.RepliesWith(`{"steps":[
		{"tool":"dbQuery","subQuery":"list recent orders"},
		{"tool":"computeStats","onStep":0,"ops":["count","mean:total"]}
	]}`)
	p := NewPlanner(oracle, zap.NewNop())

	plan := p.Plan(context.Background(), PlanInput{Query: "how are orders doing"})
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, models.StepDBQuery, plan.Steps[0].Kind)
	assert.Equal(t, models.StepComputeStats, plan.Steps[1].Kind)
	require.Len(t, plan.Steps[1].Ops, 2)
	assert.Equal(t, "mean:total", plan.Steps[1].Ops[1].String())
}

func TestPlanner_UnknownToolFallsBack(t *testing.T) {
	oracle := llm.RepliesWith(`{"steps":[{"tool":"shellCommand","subQuery":"rm -rf"}]}`)
	p := NewPlanner(oracle, zap.NewNop())

	plan := p.Plan(context.Background(), PlanInput{Query: "clean everything up somehow"})
	require.Len(t, plan.Steps, 1, "unparseable plan falls back to the single-step heuristic")
	assert.Equal(t, models.StepDBQuery, plan.Steps[0].Kind)
	assert.Equal(t, "clean everything up somehow", plan.Steps[0].SubQuery)
}

func TestPlanner_MalformedJSONFallsBack(t *testing.T) {
	oracle := llm.RepliesWith(`Sure! Here is your plan: do the thing.`)
	p := NewPlanner(oracle, zap.NewNop())

	plan := p.Plan(context.Background(), PlanInput{Query: "list products"})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "list products", plan.Steps[0].SubQuery)
}

func TestPlanner_OracleErrorFallsBack(t *testing.T) {
	oracle := llm.FailsWith(errors.New("rate limited"))
	p := NewPlanner(oracle, zap.NewNop())

	plan := p.Plan(context.Background(), PlanInput{Query: "list products"})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "list products", plan.Steps[0].SubQuery)
}

func TestPlanner_ForwardStepReferenceRejected(t *testing.T) {
	oracle := llm.RepliesWith(`{"steps":[
		{"tool":"computeStats","onStep":0,"ops":["count"]},
		{"tool":"dbQuery","subQuery":"list orders"}
	]}`)
	p := NewPlanner(oracle, zap.NewNop())

	// A stats step cannot reference itself or a later step; the plan is
	// rejected and the heuristic takes over.
	plan := p.Plan(context.Background(), PlanInput{Query: "stats first"})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, models.StepDBQuery, plan.Steps[0].Kind)
}
