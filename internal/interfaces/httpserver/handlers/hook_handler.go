package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/domain/chat"
	"github.com/aidank/chat-memory/internal/interfaces/httpserver/responses"
)

// HookHandler exposes the turn lifecycle hooks to the agent runtime. The
// runtime calls turn-start before computing a completion and turn-end
// after, and applies the returned prompt/response overrides.
type HookHandler struct {
	orchestrator *chat.Orchestrator
}

func NewHookHandler(orchestrator *chat.Orchestrator) *HookHandler {
	return &HookHandler{orchestrator: orchestrator}
}

type hookRequest struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response,omitempty"`
	Params   struct {
		UserID         string `json:"userId"`
		ConversationID string `json:"conversationId"`
	} `json:"params"`
}

type turnStartResponse struct {
	Prompt  string `json:"prompt"`
	Warning string `json:"warning,omitempty"`
}

type turnEndResponse struct {
	Response string `json:"response"`
}

// HandleTurnStart handles POST /v1/hooks/turn-start
func (h *HookHandler) HandleTurnStart(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if r.Method != http.MethodPost {
		responses.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req hookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode turn-start request")
		responses.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.orchestrator.OnTurnStart(r.Context(), chat.TurnStartParams{
		UserID:         req.Params.UserID,
		ConversationID: req.Params.ConversationID,
		Prompt:         req.Prompt,
	})

	responses.JSON(w, r, http.StatusOK, turnStartResponse{
		Prompt:  result.Prompt,
		Warning: result.Warning,
	})
}

// HandleTurnEnd handles POST /v1/hooks/turn-end
func (h *HookHandler) HandleTurnEnd(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if r.Method != http.MethodPost {
		responses.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req hookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode turn-end request")
		responses.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.orchestrator.OnTurnEnd(r.Context(), chat.TurnEndParams{
		UserID:         req.Params.UserID,
		ConversationID: req.Params.ConversationID,
		Prompt:         req.Prompt,
		Response:       req.Response,
	})

	responses.JSON(w, r, http.StatusOK, turnEndResponse{Response: result.Response})
}
