package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/domain/chat"
	"github.com/aidank/chat-memory/internal/interfaces/httpserver/responses"
)

// AgentCaller is the completion surface of the agent runtime client.
type AgentCaller interface {
	Prompt(ctx context.Context, prompt, userID, conversationID string) (string, error)
}

// ChatHandler brokers a full turn for clients that talk to this service
// directly instead of the agent runtime: pre-call hook, completion call,
// post-call hook. The agent call is the only failure surfaced to the user;
// memory failures degrade silently inside the hooks.
type ChatHandler struct {
	orchestrator *chat.Orchestrator
	agent        AgentCaller
}

func NewChatHandler(orchestrator *chat.Orchestrator, agent AgentCaller) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, agent: agent}
}

type chatRequest struct {
	Prompt         string `json:"prompt"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	Response string `json:"response"`
	Warning  string `json:"warning,omitempty"`
}

// HandleChat handles POST /v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if r.Method != http.MethodPost {
		responses.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode chat request")
		responses.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		responses.Error(w, r, http.StatusBadRequest, "prompt is required")
		return
	}

	logger.Info().
		Str("user_id", req.UserID).
		Str("conversation_id", req.ConversationID).
		Msg("Chat turn started")

	start := h.orchestrator.OnTurnStart(r.Context(), chat.TurnStartParams{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Prompt:         req.Prompt,
	})

	answer, err := h.agent.Prompt(r.Context(), start.Prompt, req.UserID, req.ConversationID)
	if err != nil {
		logger.Error().Err(err).Msg("Agent call failed")
		responses.Error(w, r, http.StatusBadGateway, "agent call failed")
		return
	}

	// Post-call resolves the parent link against the original prompt, not
	// the enriched one.
	end := h.orchestrator.OnTurnEnd(r.Context(), chat.TurnEndParams{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Prompt:         req.Prompt,
		Response:       answer,
	})

	responses.JSON(w, r, http.StatusOK, chatResponse{
		Response: end.Response,
		Warning:  start.Warning,
	})
}
