package models

import (
	"time"
)

// RecentQueryLimit bounds how many recent query texts a session retains.
const RecentQueryLimit = 5

// AgentUserID is the synthetic author id on agent-authored messages.
const AgentUserID = "agent"

// SessionContext carries cross-turn state reused by subsequent turns in
// the same session. LastDBURL is always stored credential-stripped; the
// full connection URL lives only in volatile per-connection state.
type SessionContext struct {
	LastDBURL     string       `bson:"lastDbUrl,omitempty" json:"lastDbUrl,omitempty"`
	LastDBKind    DatabaseKind `bson:"lastDbKind,omitempty" json:"lastDbKind,omitempty"`
	RecentQueries []string     `bson:"recentQueries,omitempty" json:"recentQueries,omitempty"`
}

// PushRecentQuery appends a query text, keeping the newest RecentQueryLimit.
func (c *SessionContext) PushRecentQuery(text string) {
	c.RecentQueries = append(c.RecentQueries, text)
	if len(c.RecentQueries) > RecentQueryLimit {
		c.RecentQueries = c.RecentQueries[len(c.RecentQueries)-RecentQueryLimit:]
	}
}

// Session is one conversation bound to a single user. Sessions expire at
// the storage layer 30 days after their last activity; the housekeeping
// sweep marks them inactive well before that.
type Session struct {
	ID           string         `bson:"_id" json:"sessionId"`
	UserID       string         `bson:"userId" json:"userId"`
	Title        string         `bson:"title,omitempty" json:"title,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
	LastActivity time.Time      `bson:"lastActivity" json:"lastActivity"`
	MessageCount int            `bson:"messageCount" json:"messageCount"`
	Active       bool           `bson:"active" json:"active"`
	Context      SessionContext `bson:"context" json:"context"`
}

// MessageRole identifies the author class of a chat message.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// MessageMetadata carries optional execution details on agent messages.
type MessageMetadata struct {
	QueryKind       QueryKind `bson:"queryKind,omitempty" json:"queryKind,omitempty"`
	ExecutionMillis int64     `bson:"executionMillis,omitempty" json:"executionMillis,omitempty"`
	DataRetrieved   bool      `bson:"dataRetrieved,omitempty" json:"dataRetrieved,omitempty"`
	ToolsUsed       []string  `bson:"toolsUsed,omitempty" json:"toolsUsed,omitempty"`
	Confidence      float64   `bson:"confidence,omitempty" json:"confidence,omitempty"`
}

// ChatMessage is one append-only message in a session.
type ChatMessage struct {
	ID        string           `bson:"_id" json:"id"`
	SessionID string           `bson:"sessionId" json:"sessionId"`
	UserID    string           `bson:"userId" json:"userId"`
	Role      MessageRole      `bson:"role" json:"role"`
	Text      string           `bson:"text" json:"text"`
	Timestamp time.Time        `bson:"timestamp" json:"timestamp"`
	Metadata  *MessageMetadata `bson:"metadata,omitempty" json:"metadata,omitempty"`
}
