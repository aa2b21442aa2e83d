package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/auth"
	"github.com/datapilot-ai/datapilot-engine/pkg/services"
)

// defaultTurnTimeout bounds one send-message turn, LLM calls included.
const defaultTurnTimeout = 2 * time.Minute

// Handler upgrades /ws connections and dispatches the event protocol onto
// the session manager.
type Handler struct {
	sessions services.SessionManager
	verifier auth.TokenVerifier
	devMode  bool

	hub         *hub
	upgrader    websocket.Upgrader
	turnTimeout time.Duration
	logger      *zap.Logger
}

// NewHandler creates the WebSocket handler. devMode permits unauthenticated
// connections that identify via the X-User-ID header.
func NewHandler(sessions services.SessionManager, verifier auth.TokenVerifier, devMode bool, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		verifier: verifier,
		devMode:  devMode,
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		turnTimeout: defaultTurnTimeout,
		logger:      logger.Named("ws"),
	}
}

// RegisterRoutes registers the WebSocket endpoint on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.Serve)
}

// Serve authenticates the handshake, upgrades the connection and runs the
// socket's read loop until the client disconnects.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	s := &socket{
		conn:   conn,
		userID: userID,
		logger: h.logger,
	}
	h.logger.Info("socket connected", zap.String("user_id", userID))

	h.readLoop(s)

	h.hub.leave(s)
	_ = conn.Close()
	h.logger.Info("socket disconnected", zap.String("user_id", userID))
}

// authenticate resolves the connection's identity from the bearer token
// (Authorization header or "token" query param for browser clients).
func (h *Handler) authenticate(r *http.Request) (string, error) {
	token := auth.BearerToken(r)
	if token == "" {
		if h.devMode {
			if userID := r.Header.Get("X-User-ID"); userID != "" {
				return userID, nil
			}
		}
		return "", apperrors.New(apperrors.KindUnauthorized, "missing bearer token")
	}

	claims, err := h.verifier.VerifyToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// readLoop processes events one at a time in receive order.
func (h *Handler) readLoop(s *socket) {
	s.conn.SetReadLimit(maxMessageSize)

	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		h.dispatch(s, env)
	}
}

func (h *Handler) dispatch(s *socket, env Envelope) {
	switch env.Event {
	case EventJoinSession:
		h.handleJoin(s, env.Data)
	case EventSendMessage:
		h.handleSend(s, env.Data)
	case EventTyping:
		h.handleTyping(s, env.Data)
	case EventCreateSession:
		h.handleCreate(s, env.Data)
	case EventGetSessions:
		h.handleList(s)
	case EventDeleteSession:
		h.handleDelete(s, env.Data)
	default:
		s.sendError("unknown event: "+env.Event, string(apperrors.KindBadInput))
	}
}

func (h *Handler) handleJoin(s *socket, data json.RawMessage) {
	var p JoinSessionPayload
	if !h.decode(s, data, &p) {
		return
	}
	if p.SessionID == "" {
		s.sendError("sessionId is required", string(apperrors.KindBadInput))
		return
	}
	if !h.identityMatches(s, p.UserID) {
		return
	}

	ctx, cancel := h.eventContext()
	defer cancel()

	session, history, err := h.sessions.Join(ctx, p.SessionID, s.userID)
	if err != nil {
		h.sendFailure(s, err)
		return
	}

	h.hub.join(s, session.ID)
	s.send(EventSessionJoined, SessionJoinedPayload{Session: session, Messages: history})
}

func (h *Handler) handleSend(s *socket, data json.RawMessage) {
	var p SendMessagePayload
	if !h.decode(s, data, &p) {
		return
	}
	if !h.identityMatches(s, p.UserID) {
		return
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = h.hub.current(s)
	}
	if sessionID == "" {
		s.sendError("join a session before sending", string(apperrors.KindBadInput))
		return
	}

	s.send(EventAgentThinking, AgentThinkingPayload{SessionID: sessionID})

	ctx, cancel := context.WithTimeout(context.Background(), h.turnTimeout)
	defer cancel()

	out, err := h.sessions.Send(ctx, services.SendInput{
		SessionID: sessionID,
		UserID:    s.userID,
		Text:      p.Message,
		DBURL:     p.DBURL,
		DBType:    p.DBType,
		DryRun:    p.DryRun,
		Insight:   p.Insight,
	})
	if err != nil {
		h.sendFailure(s, err)
		return
	}

	h.hub.broadcast(sessionID, EventMessageReceived, out.UserMessage, s)
	s.send(EventMessageReceived, out.UserMessage)

	response := AgentResponsePayload{
		SessionID: sessionID,
		Message:   out.AgentMessage,
		Response:  out.Response,
	}
	s.send(EventAgentResponse, response)
	h.hub.broadcast(sessionID, EventAgentResponse, response, s)
}

func (h *Handler) handleTyping(s *socket, data json.RawMessage) {
	var p TypingPayload
	if !h.decode(s, data, &p) {
		return
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = h.hub.current(s)
	}
	if sessionID == "" {
		return
	}

	h.hub.broadcast(sessionID, EventTypingIndicator, TypingIndicatorPayload{
		SessionID: sessionID,
		UserID:    s.userID,
		IsTyping:  p.IsTyping,
	}, s)
}

func (h *Handler) handleCreate(s *socket, data json.RawMessage) {
	var p CreateSessionPayload
	if len(data) > 0 && !h.decode(s, data, &p) {
		return
	}

	ctx, cancel := h.eventContext()
	defer cancel()

	session, err := h.sessions.Create(ctx, s.userID, p.Title)
	if err != nil {
		h.sendFailure(s, err)
		return
	}
	s.send(EventSessionCreated, session)
}

func (h *Handler) handleList(s *socket) {
	ctx, cancel := h.eventContext()
	defer cancel()

	sessions, err := h.sessions.List(ctx, s.userID)
	if err != nil {
		h.sendFailure(s, err)
		return
	}
	s.send(EventSessionsList, SessionsListPayload{Sessions: sessions})
}

func (h *Handler) handleDelete(s *socket, data json.RawMessage) {
	var p DeleteSessionPayload
	if !h.decode(s, data, &p) {
		return
	}
	if p.SessionID == "" {
		s.sendError("sessionId is required", string(apperrors.KindBadInput))
		return
	}

	ctx, cancel := h.eventContext()
	defer cancel()

	if err := h.sessions.Delete(ctx, p.SessionID, s.userID); err != nil {
		h.sendFailure(s, err)
		return
	}

	h.hub.broadcast(p.SessionID, EventSessionDeleted, SessionDeletedPayload{SessionID: p.SessionID}, s)
	h.hub.drop(p.SessionID)
	s.send(EventSessionDeleted, SessionDeletedPayload{SessionID: p.SessionID})
}

// identityMatches rejects payloads whose userId disagrees with the token
// subject the socket authenticated with.
func (h *Handler) identityMatches(s *socket, payloadUserID string) bool {
	if payloadUserID != "" && payloadUserID != s.userID {
		s.sendError("userId does not match authenticated user", string(apperrors.KindUnauthorized))
		return false
	}
	return true
}

func (h *Handler) decode(s *socket, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.sendError("malformed event payload", string(apperrors.KindBadInput))
		return false
	}
	return true
}

func (h *Handler) sendFailure(s *socket, err error) {
	s.sendError(err.Error(), string(apperrors.KindOf(err)))
}

func (h *Handler) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
