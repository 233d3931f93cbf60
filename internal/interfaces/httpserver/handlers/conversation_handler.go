package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/domain/chat"
	"github.com/aidank/chat-memory/internal/interfaces/httpserver/responses"
)

const (
	defaultHistoryLimit = 50
	defaultListLimit    = 100
)

// ConversationHandler serves the conversation management surface backing
// the chat UI: history reads, conversation listing, clear and rename.
type ConversationHandler struct {
	store  chat.Store
	scopes *chat.ScopeResolver
}

func NewConversationHandler(store chat.Store, scopes *chat.ScopeResolver) *ConversationHandler {
	return &ConversationHandler{store: store, scopes: scopes}
}

type historyResponse struct {
	Messages []chat.Message `json:"messages"`
}

type listResponse struct {
	Conversations []string `json:"conversations"`
}

type renameRequest struct {
	UserID            string `json:"userId"`
	OldConversationID string `json:"oldConversationId"`
	NewConversationID string `json:"newConversationId"`
}

// HandleHistory handles GET /v1/conversations/history
func (h *ConversationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if r.Method != http.MethodGet {
		responses.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	scope := h.scopes.Resolve(r.URL.Query().Get("userId"), r.URL.Query().Get("conversationId"))
	limit := queryLimit(r, defaultHistoryLimit)

	msgs, err := h.store.History(r.Context(), scope, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch conversation history")
		responses.Error(w, r, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	responses.JSON(w, r, http.StatusOK, historyResponse{Messages: msgs})
}

// HandleConversations handles /v1/conversations: GET lists the user's
// conversations, DELETE clears one scope.
func (h *ConversationHandler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodDelete:
		h.handleClear(w, r)
	default:
		responses.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ConversationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	scope := h.scopes.Resolve(r.URL.Query().Get("userId"), "")
	limit := queryLimit(r, defaultListLimit)

	ids, err := h.store.ListConversations(r.Context(), scope, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list conversations")
		responses.Error(w, r, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	responses.JSON(w, r, http.StatusOK, listResponse{Conversations: ids})
}

func (h *ConversationHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		// Destructive: never fall back to the default conversation here.
		responses.Error(w, r, http.StatusBadRequest, "conversationId is required")
		return
	}
	scope := h.scopes.Resolve(r.URL.Query().Get("userId"), conversationID)

	deleted, err := h.store.DeleteByScope(r.Context(), scope)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to clear conversation")
		responses.Error(w, r, http.StatusInternalServerError, "failed to clear conversation")
		return
	}

	responses.JSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"deleted": deleted,
	})
}

// HandleRename handles POST /v1/conversations/rename
func (h *ConversationHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if r.Method != http.MethodPost {
		responses.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode rename request")
		responses.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OldConversationID == "" || req.NewConversationID == "" {
		responses.Error(w, r, http.StatusBadRequest, "oldConversationId and newConversationId are required")
		return
	}

	scope := h.scopes.Resolve(req.UserID, req.OldConversationID)

	renamed, err := h.store.RenameScope(r.Context(), scope, req.NewConversationID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to rename conversation")
		responses.Error(w, r, http.StatusInternalServerError, "failed to rename conversation")
		return
	}

	responses.JSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"renamed": renamed,
	})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
