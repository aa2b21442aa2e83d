// Package handlers exposes the engine over HTTP. Handlers stay thin: they
// decode, delegate to the services and encode; all domain behavior lives in
// pkg/services.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/auth"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/services"
)

// AgentHandler serves the query, feedback and status endpoints.
type AgentHandler struct {
	agent  services.AgentService
	authMW *auth.Middleware
	logger *zap.Logger
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(agent services.AgentService, authMW *auth.Middleware, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		agent:  agent,
		authMW: authMW,
		logger: logger,
	}
}

// RegisterRoutes registers the agent endpoints on the given mux.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.authMW.RequireAuth(h.Query))
	mux.HandleFunc("POST /api/feedback", h.authMW.RequireAuth(h.Feedback))
	mux.HandleFunc("GET /api/status", h.Status)
}

// Query handles POST /api/query: one natural-language turn against the
// database named in the request.
func (h *AgentHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = WriteError(w, apperrors.New(apperrors.KindUnauthorized, "authentication required"))
		return
	}

	var req models.AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = WriteError(w, apperrors.New(apperrors.KindBadInput, "request body is not valid JSON"))
		return
	}
	req.UserID = userID

	resp, err := h.agent.HandleQuery(r.Context(), &req)
	if err != nil {
		h.logger.Debug("query request failed",
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err))
		_ = WriteError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// Feedback handles POST /api/feedback: thumbs up/down on a past turn.
func (h *AgentHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = WriteError(w, apperrors.New(apperrors.KindUnauthorized, "authentication required"))
		return
	}

	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = WriteError(w, apperrors.New(apperrors.KindBadInput, "request body is not valid JSON"))
		return
	}

	if err := h.agent.Feedback(r.Context(), userID, &req); err != nil {
		_ = WriteError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]bool{"success": true}); err != nil {
		h.logger.Error("Failed to encode feedback response", zap.Error(err))
	}
}

// Status handles GET /api/status with the engine's capability list.
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.agent.Status()); err != nil {
		h.logger.Error("Failed to encode status response", zap.Error(err))
	}
}
