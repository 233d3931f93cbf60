package chat

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/metrics"
)

// Warnings surfaced when a request arrives without identity. Missing
// identity never blocks the chat flow; memory is simply disabled for the
// turn.
const (
	memoryDisabledWarning         = "Agent memory disabled: userId and conversationId are required."
	memoryDisabledResponseWarning = "\n\nWarning: agent memory disabled because userId and conversationId were not provided."
)

const enhancedPromptInstruction = "Please provide a comprehensive response that builds upon the conversation history above. " +
	"If the user is asking for more detail or clarification, expand on previous points rather than repeating them."

// TurnStartParams carries the pre-call hook input.
type TurnStartParams struct {
	UserID         string
	ConversationID string
	Prompt         string
}

// TurnStartResult is the pre-call hook output: the (possibly enriched)
// prompt handed to the completion call, plus a warning when memory was
// disabled for the turn.
type TurnStartResult struct {
	Prompt  string
	Warning string
}

// TurnEndParams carries the post-call hook input. Prompt is the original
// user prompt of the turn, used for parent resolution, not the enriched one.
type TurnEndParams struct {
	UserID         string
	ConversationID string
	Prompt         string
	Response       string
}

// TurnEndResult is the post-call hook output.
type TurnEndResult struct {
	Response string
}

// Orchestrator runs the two lifecycle hooks bracketing each completion
// call. Memory failures never abort a chat turn: every store error here is
// logged and absorbed, degrading to pass-through behavior.
type Orchestrator struct {
	store     Store
	retriever *Retriever
	scopes    *ScopeResolver
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(store Store, retriever *Retriever, scopes *ScopeResolver) *Orchestrator {
	return &Orchestrator{store: store, retriever: retriever, scopes: scopes}
}

// OnTurnStart is the pre-call hook: retrieve context, enrich the prompt,
// persist the user message. Context is fetched strictly before the user
// message is written so the current prompt never self-matches as its own
// context.
func (o *Orchestrator) OnTurnStart(ctx context.Context, params TurnStartParams) TurnStartResult {
	logger := log.Ctx(ctx)

	if params.UserID == "" || params.ConversationID == "" {
		logger.Warn().Msg("Missing userId or conversationId - skipping memory")
		metrics.RecordTurn("start", "memory_disabled")
		return TurnStartResult{Prompt: params.Prompt, Warning: memoryDisabledWarning}
	}

	scope := o.scopes.Resolve(params.UserID, params.ConversationID)

	if _, err := o.store.EnsureSchema(ctx); err != nil {
		logger.Error().Err(err).Msg("Schema check failed, memory skipped for this turn")
		metrics.RecordTurn("start", "degraded")
		return TurnStartResult{Prompt: params.Prompt}
	}

	contextBlock, err := o.retriever.Retrieve(ctx, scope, params.Prompt)
	if err != nil {
		// Treated as "no context available": a failed or not-yet-existing
		// partition must not block the turn.
		logger.Warn().Err(err).Msg("Context retrieval failed, continuing without context")
		contextBlock = ""
	}

	_, err = o.store.Insert(ctx, Message{
		Role:           RoleUser,
		Content:        params.Prompt,
		ConversationID: scope.ConversationID,
		UserID:         scope.UserID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store user message")
		metrics.RecordTurn("start", "degraded")
		return TurnStartResult{Prompt: params.Prompt}
	}

	if contextBlock == "" {
		metrics.RecordTurn("start", "ok")
		return TurnStartResult{Prompt: params.Prompt}
	}

	metrics.RecordTurn("start", "enriched")
	return TurnStartResult{
		Prompt: contextBlock + "\n\nCurrent User Question: " + params.Prompt + "\n\n" + enhancedPromptInstruction,
	}
}

// OnTurnEnd is the post-call hook: resolve the parent user message by exact
// content and persist the assistant reply. The response text is always
// returned unchanged to the caller.
func (o *Orchestrator) OnTurnEnd(ctx context.Context, params TurnEndParams) TurnEndResult {
	logger := log.Ctx(ctx)

	if params.UserID == "" || params.ConversationID == "" {
		logger.Warn().Msg("Missing userId or conversationId - skipping memory store")
		metrics.RecordTurn("end", "memory_disabled")
		return TurnEndResult{Response: params.Response + memoryDisabledResponseWarning}
	}

	scope := o.scopes.Resolve(params.UserID, params.ConversationID)

	if _, err := o.store.EnsureSchema(ctx); err != nil {
		logger.Error().Err(err).Msg("Schema check failed, assistant message not stored")
		metrics.RecordTurn("end", "degraded")
		return TurnEndResult{Response: params.Response}
	}

	parentID, err := o.store.FindLatestUserMessage(ctx, scope, params.Prompt)
	if err != nil {
		// A missing parent link is cosmetic; store without one.
		logger.Info().Err(err).Msg("Could not find parent message ID, storing without parent reference")
		parentID = ""
	}

	if params.Response != "" {
		_, err = o.store.Insert(ctx, Message{
			Role:           RoleAssistant,
			Content:        params.Response,
			ConversationID: scope.ConversationID,
			UserID:         scope.UserID,
			ParentID:       parentID,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to store assistant message")
			metrics.RecordTurn("end", "degraded")
			return TurnEndResult{Response: params.Response}
		}
	}

	metrics.RecordTurn("end", "ok")
	return TurnEndResult{Response: params.Response}
}
