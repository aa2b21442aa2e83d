package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/safety"
)

// newAgentService wires a pipeline whose validation and conversation paths
// never reach a database. The connection manager is real but is only hit by
// queries that pass framing, which these tests avoid.
func newAgentService(records *fakeMemoryRepo, profiles *fakeProfileRepo) AgentService {
	nop := zap.NewNop()
	memory := NewMemoryService(records, profiles, nop)
	synth := NewQuerySynthesizer(nil, nop)
	gate := safety.NewGate(1000, nop)
	return NewAgentService(
		datasource.NewManager(datasource.ManagerConfig{}, nop),
		NewSchemaRegistry(nil, nil, time.Hour, nop),
		NewCapabilityProfiler(),
		NewKeywordMatcher(),
		memory,
		NewPlanner(nil, nop),
		NewExecutor(synth, gate, nil, 15*time.Second, 1000, nop),
		NewResponseShaper(nil, false, nop),
		"test",
		nop,
	)
}

func TestAgent_ConversationalQueryNeedsNoEndpoint(t *testing.T) {
	records := &fakeMemoryRepo{}
	svc := newAgentService(records, newFakeProfileRepo())

	resp, err := svc.HandleQuery(context.Background(), &models.AgentRequest{
		UserID: "u1",
		Query:  "hi",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	require.Len(t, records.records, 1)
	assert.Equal(t, models.QueryKindConversation, records.records[0].QueryKind)
	assert.True(t, records.records[0].Succeeded)
}

func TestAgent_QueryLengthBounds(t *testing.T) {
	svc := newAgentService(&fakeMemoryRepo{}, newFakeProfileRepo())
	ctx := context.Background()

	_, err := svc.HandleQuery(ctx, &models.AgentRequest{UserID: "u1", Query: "zz"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))

	_, err = svc.HandleQuery(ctx, &models.AgentRequest{
		UserID: "u1",
		Query:  strings.Repeat("x", 501),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))
}

func TestAgent_MissingEndpointRejected(t *testing.T) {
	svc := newAgentService(&fakeMemoryRepo{}, newFakeProfileRepo())

	_, err := svc.HandleQuery(context.Background(), &models.AgentRequest{
		UserID: "u1",
		Query:  "show me all the orders",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))
	assert.Contains(t, err.Error(), "dbUrl")
}

func TestAgent_MissingIdentityRejected(t *testing.T) {
	svc := newAgentService(&fakeMemoryRepo{}, newFakeProfileRepo())

	_, err := svc.HandleQuery(context.Background(), &models.AgentRequest{
		Query: "show me all the orders",
		DBURL: "postgres://localhost/shop",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))
}

func TestAgent_UnknownEndpointKindRejected(t *testing.T) {
	svc := newAgentService(&fakeMemoryRepo{}, newFakeProfileRepo())

	_, err := svc.HandleQuery(context.Background(), &models.AgentRequest{
		UserID: "u1",
		Query:  "show me all the orders",
		DBURL:  "oracle://localhost/legacy",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnsupportedEndpoint))
}

func TestAgent_Feedback(t *testing.T) {
	records := &fakeMemoryRepo{}
	svc := newAgentService(records, newFakeProfileRepo())
	ctx := context.Background()

	_, err := svc.HandleQuery(ctx, &models.AgentRequest{UserID: "u1", Query: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, records.records)
	queryID := records.records[0].QueryID

	require.NoError(t, svc.Feedback(ctx, "u1", &models.FeedbackRequest{
		QueryID:  queryID,
		Feedback: "thumbs_up",
	}))
	assert.Equal(t, models.FeedbackPositive, records.records[0].Feedback)

	err = svc.Feedback(ctx, "u1", &models.FeedbackRequest{QueryID: queryID, Feedback: "meh"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))

	err = svc.Feedback(ctx, "u1", &models.FeedbackRequest{Feedback: "+"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadInput))
}

func TestAgent_Status(t *testing.T) {
	svc := newAgentService(&fakeMemoryRepo{}, newFakeProfileRepo())

	status := svc.Status()
	assert.Equal(t, "test", status.Version)
	assert.ElementsMatch(t, []string{"mongodb", "postgres", "mysql"}, status.Databases)
	assert.Contains(t, status.Capabilities, "natural_language_queries")
	assert.Contains(t, status.Capabilities, "dry_run_previews")
}
