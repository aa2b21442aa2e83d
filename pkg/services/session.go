package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/repositories"
)

// SessionManager owns conversation state: session lifecycle with ownership
// checks, the chat log, cross-turn endpoint reuse, and the housekeeping
// sweep that marks idle sessions inactive.
type SessionManager interface {
	// Join returns the session and its recent messages, creating the
	// session when it does not exist yet. Joining a session owned by a
	// different user fails with Unauthorized.
	Join(ctx context.Context, sessionID, userID string) (*models.Session, []*models.ChatMessage, error)

	// Create starts a fresh session for the user, subject to the per-user cap.
	Create(ctx context.Context, userID, title string) (*models.Session, error)

	// List returns the user's sessions, most recently active first.
	List(ctx context.Context, userID string) ([]*models.Session, error)

	// Delete removes the session and its messages. Owner only.
	Delete(ctx context.Context, sessionID, userID string) error

	// Send drives one user turn through the agent pipeline: it appends the
	// user message, resolves the effective endpoint, executes, appends the
	// agent message and updates the session context.
	Send(ctx context.Context, in SendInput) (*SendOutput, error)

	// StartSweep launches the periodic idle sweep; StopSweep halts it.
	StartSweep()
	StopSweep()
}

// SendInput is one user turn arriving on a session.
type SendInput struct {
	SessionID string
	UserID    string
	Text      string
	// DBURL/DBType override the session's remembered endpoint when set.
	DBURL  string
	DBType string
	DryRun bool
	// Insight selects the verbose response shape.
	Insight bool
}

// SendOutput carries the turn's result and both chat log entries.
type SendOutput struct {
	Response     *models.AgentResponse
	UserMessage  *models.ChatMessage
	AgentMessage *models.ChatMessage
}

// volatileEndpoint is the in-process, full-credential endpoint for one
// session. It never reaches the store; the persisted session context only
// carries the sanitized form.
type volatileEndpoint struct {
	url  string
	kind string
}

type sessionManager struct {
	sessions repositories.SessionRepository
	messages repositories.MessageRepository
	agent    AgentService

	idleTimeout   time.Duration
	sweepInterval time.Duration
	maxPerUser    int
	messageCap    int

	mu        sync.Mutex
	endpoints map[string]volatileEndpoint // sessionID → last full endpoint

	sweepTicker *time.Ticker
	sweepStop   chan struct{}
	sweepOnce   sync.Once

	logger *zap.Logger
}

// SessionManagerConfig carries the housekeeping knobs.
type SessionManagerConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxPerUser    int
	MessageCap    int
}

// NewSessionManager creates a session manager. StartSweep must be called to
// begin housekeeping.
func NewSessionManager(
	sessions repositories.SessionRepository,
	messages repositories.MessageRepository,
	agent AgentService,
	cfg SessionManagerConfig,
	logger *zap.Logger,
) SessionManager {
	return &sessionManager{
		sessions:      sessions,
		messages:      messages,
		agent:         agent,
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		maxPerUser:    cfg.MaxPerUser,
		messageCap:    cfg.MessageCap,
		endpoints:     make(map[string]volatileEndpoint),
		sweepStop:     make(chan struct{}),
		logger:        logger.Named("session"),
	}
}

var _ SessionManager = (*sessionManager)(nil)

func (m *sessionManager) Join(ctx context.Context, sessionID, userID string) (*models.Session, []*models.ChatMessage, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if apperrors.IsKind(err, apperrors.KindSessionNotFound) {
		session, err = m.createWithID(ctx, sessionID, userID, "")
		if err != nil {
			return nil, nil, err
		}
		return session, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, apperrors.Newf(apperrors.KindUnauthorized,
			"session %s belongs to a different user", sessionID)
	}

	if err := m.sessions.RecordActivity(ctx, sessionID, time.Now().UTC(), 0); err != nil {
		m.logger.Warn("failed to touch session on join", zap.String("session_id", sessionID), zap.Error(err))
	}

	history, err := m.messages.ListBySession(ctx, sessionID, m.messageCap)
	if err != nil {
		m.logger.Warn("failed to load session history", zap.String("session_id", sessionID), zap.Error(err))
		history = nil
	}
	return session, history, nil
}

func (m *sessionManager) Create(ctx context.Context, userID, title string) (*models.Session, error) {
	return m.createWithID(ctx, "", userID, title)
}

func (m *sessionManager) createWithID(ctx context.Context, sessionID, userID, title string) (*models.Session, error) {
	active, err := m.sessions.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m.maxPerUser > 0 && active >= int64(m.maxPerUser) {
		return nil, apperrors.Newf(apperrors.KindBadInput,
			"session limit reached (%d active sessions)", m.maxPerUser)
	}

	session := &models.Session{
		ID:     sessionID,
		UserID: userID,
		Title:  title,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *sessionManager) List(ctx context.Context, userID string) ([]*models.Session, error) {
	return m.sessions.ListByUser(ctx, userID, 0)
}

func (m *sessionManager) Delete(ctx context.Context, sessionID, userID string) error {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return apperrors.Newf(apperrors.KindUnauthorized,
			"session %s belongs to a different user", sessionID)
	}

	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	if _, err := m.messages.DeleteBySession(ctx, sessionID); err != nil {
		m.logger.Warn("failed to delete session messages", zap.String("session_id", sessionID), zap.Error(err))
	}

	m.mu.Lock()
	delete(m.endpoints, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *sessionManager) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	session, err := m.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != in.UserID {
		return nil, apperrors.Newf(apperrors.KindUnauthorized,
			"session %s belongs to a different user", in.SessionID)
	}

	dbURL, dbType := m.resolveEndpoint(in, session)

	userMsg := &models.ChatMessage{
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Role:      models.RoleUser,
		Text:      in.Text,
		Timestamp: time.Now().UTC(),
	}
	if err := m.messages.Append(ctx, userMsg); err != nil {
		return nil, err
	}

	resp, err := m.agent.HandleQuery(ctx, &models.AgentRequest{
		UserID:    in.UserID,
		Query:     in.Text,
		DBURL:     dbURL,
		DBType:    dbType,
		DryRun:    in.DryRun,
		Insight:   in.Insight,
		SessionID: in.SessionID,
	})
	if err != nil {
		// Framing errors still produce an agent turn so the conversation
		// shows what went wrong.
		resp = &models.AgentResponse{Success: false, Message: err.Error()}
	}

	agentMsg := &models.ChatMessage{
		SessionID: in.SessionID,
		UserID:    models.AgentUserID,
		Role:      models.RoleAgent,
		Text:      resp.Message,
		Timestamp: time.Now().UTC(),
		Metadata: &models.MessageMetadata{
			ExecutionMillis: resp.ExecutionMillis,
			DataRetrieved:   resp.Data != nil,
		},
	}
	if agentMsg.Timestamp.Before(userMsg.Timestamp) {
		agentMsg.Timestamp = userMsg.Timestamp
	}
	if err := m.messages.Append(ctx, agentMsg); err != nil {
		m.logger.Warn("failed to append agent message", zap.String("session_id", in.SessionID), zap.Error(err))
	}

	m.updateContext(ctx, session, in, dbURL, dbType)

	if err := m.sessions.RecordActivity(ctx, in.SessionID, agentMsg.Timestamp, 2); err != nil {
		m.logger.Warn("failed to record session activity", zap.String("session_id", in.SessionID), zap.Error(err))
	}

	return &SendOutput{Response: resp, UserMessage: userMsg, AgentMessage: agentMsg}, nil
}

// resolveEndpoint picks the effective endpoint for the turn: the explicit
// override when present, otherwise the session's volatile last endpoint.
func (m *sessionManager) resolveEndpoint(in SendInput, session *models.Session) (string, string) {
	if in.DBURL != "" {
		return in.DBURL, in.DBType
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.endpoints[session.ID]; ok {
		return last.url, last.kind
	}
	return "", ""
}

// updateContext persists the turn into the session context. Only the
// sanitized endpoint form reaches the store; the full URL stays in the
// in-process map.
func (m *sessionManager) updateContext(ctx context.Context, session *models.Session, in SendInput, dbURL, dbType string) {
	session.Context.PushRecentQuery(in.Text)

	if dbURL != "" {
		if endpoint, err := models.NewDatabaseEndpoint(dbURL, dbType); err == nil {
			session.Context.LastDBURL = endpoint.Sanitized()
			session.Context.LastDBKind = endpoint.Kind

			m.mu.Lock()
			m.endpoints[session.ID] = volatileEndpoint{url: dbURL, kind: dbType}
			m.mu.Unlock()
		}
	}

	if err := m.sessions.UpdateContext(ctx, session.ID, session.Context); err != nil {
		m.logger.Warn("failed to update session context", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (m *sessionManager) StartSweep() {
	if m.sweepInterval <= 0 {
		return
	}
	m.sweepTicker = time.NewTicker(m.sweepInterval)
	go func() {
		for {
			select {
			case <-m.sweepTicker.C:
				m.sweep()
			case <-m.sweepStop:
				return
			}
		}
	}()
}

func (m *sessionManager) StopSweep() {
	m.sweepOnce.Do(func() {
		if m.sweepTicker != nil {
			m.sweepTicker.Stop()
		}
		close(m.sweepStop)
	})
}

// sweep marks sessions idle longer than the timeout as inactive. The
// storage-level TTL index handles eventual removal separately.
func (m *sessionManager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-m.idleTimeout)
	swept, err := m.sessions.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		m.logger.Warn("idle sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		m.logger.Info("idle sessions swept", zap.Int64("count", swept))
	}
}
