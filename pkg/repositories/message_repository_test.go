//go:build integration

package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func appendTestMessages(t *testing.T, repo MessageRepository, sessionID string, n int) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		msg := &models.ChatMessage{
			SessionID: sessionID,
			UserID:    "user-1",
			Role:      models.RoleUser,
			Text:      fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Append(ctxBG(), msg))
		require.NotEmpty(t, msg.ID, "append fills the message id")
	}
}

func ctxBG() context.Context { return context.Background() }

func TestMessageRepository_AppendAndList(t *testing.T) {
	repo := NewMessageRepository(stateForTest(t))
	sessionID := uuid.NewString()

	appendTestMessages(t, repo, sessionID, 3)

	messages, err := repo.ListBySession(ctxBG(), sessionID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "message 0", messages[0].Text)
	assert.Equal(t, "message 2", messages[2].Text)
}

func TestMessageRepository_ListCapDropsOldest(t *testing.T) {
	repo := NewMessageRepository(stateForTest(t))
	sessionID := uuid.NewString()

	appendTestMessages(t, repo, sessionID, 5)

	messages, err := repo.ListBySession(ctxBG(), sessionID, 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	// The newest three, still chronological.
	assert.Equal(t, "message 2", messages[0].Text)
	assert.Equal(t, "message 4", messages[2].Text)
}

func TestMessageRepository_DeleteBySession(t *testing.T) {
	repo := NewMessageRepository(stateForTest(t))
	sessionID := uuid.NewString()

	appendTestMessages(t, repo, sessionID, 2)

	deleted, err := repo.DeleteBySession(ctxBG(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	messages, err := repo.ListBySession(ctxBG(), sessionID, 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
