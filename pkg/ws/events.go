// Package ws is the real-time conversation surface. Each socket speaks a
// small JSON event protocol over a WebSocket; events on one socket are
// handled strictly in receive order, so a turn's agent-response is emitted
// before the next send-message on that socket is accepted.
package ws

import (
	"encoding/json"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Client → server event names.
const (
	EventJoinSession   = "join-session"
	EventSendMessage   = "send-message"
	EventTyping        = "typing"
	EventCreateSession = "create-session"
	EventGetSessions   = "get-sessions"
	EventDeleteSession = "delete-session"
)

// Server → client event names.
const (
	EventSessionJoined   = "session-joined"
	EventMessageReceived = "message-received"
	EventAgentThinking   = "agent-thinking"
	EventAgentResponse   = "agent-response"
	EventTypingIndicator = "typing-indicator"
	EventSessionsList    = "sessions-list"
	EventSessionCreated  = "session-created"
	EventSessionDeleted  = "session-deleted"
	EventError           = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinSessionPayload asks to join (or lazily create) a session.
type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

// SendMessagePayload is one user turn on a joined session.
type SendMessagePayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Message   string `json:"message"`
	DBURL     string `json:"dbUrl,omitempty"`
	DBType    string `json:"dbType,omitempty"`
	DryRun    bool   `json:"dryRun,omitempty"`
	Insight   bool   `json:"insight,omitempty"`
}

// TypingPayload signals typing state to other members of the session.
type TypingPayload struct {
	SessionID string `json:"sessionId"`
	IsTyping  bool   `json:"isTyping"`
}

// CreateSessionPayload starts a fresh session.
type CreateSessionPayload struct {
	Title string `json:"title,omitempty"`
}

// DeleteSessionPayload removes a session the caller owns.
type DeleteSessionPayload struct {
	SessionID string `json:"sessionId"`
}

// SessionJoinedPayload carries the session plus its recent history.
type SessionJoinedPayload struct {
	Session  *models.Session       `json:"session"`
	Messages []*models.ChatMessage `json:"messages"`
}

// AgentThinkingPayload is the optional progress ping while a turn runs.
type AgentThinkingPayload struct {
	SessionID string `json:"sessionId"`
}

// AgentResponsePayload carries the finished turn.
type AgentResponsePayload struct {
	SessionID string                `json:"sessionId"`
	Message   *models.ChatMessage   `json:"message"`
	Response  *models.AgentResponse `json:"response"`
}

// TypingIndicatorPayload relays another member's typing state.
type TypingIndicatorPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
}

// SessionsListPayload carries the caller's sessions, most recent first.
type SessionsListPayload struct {
	Sessions []*models.Session `json:"sessions"`
}

// SessionDeletedPayload confirms a deletion.
type SessionDeletedPayload struct {
	SessionID string `json:"sessionId"`
}

// ErrorPayload reports a failed event. Code is the error taxonomy kind.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
