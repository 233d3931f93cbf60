package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/metrics"
)

// DefaultContextWindow is the number of prior messages injected into an
// outgoing prompt when no window size is configured.
const DefaultContextWindow = 10

// ContextHeader opens every rendered context block.
const ContextHeader = "Previous conversation context:\n\n"

// Retriever assembles the bounded, chronologically ordered context window
// injected into outgoing prompts. Similarity picks the candidate pool;
// recency picks the final order and truncation.
type Retriever struct {
	store  Store
	window int
}

// NewRetriever creates a retriever with the given window size. A
// non-positive window falls back to DefaultContextWindow.
func NewRetriever(store Store, window int) *Retriever {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &Retriever{store: store, window: window}
}

// Retrieve renders the context block for the current prompt. It overfetches
// twice the window size by similarity, re-sorts the candidates
// chronologically, and keeps the most recent window of them. An empty
// string means no context available, which is distinct from an error.
func (r *Retriever) Retrieve(ctx context.Context, scope Scope, prompt string) (string, error) {
	candidates, err := r.store.SemanticSearch(ctx, scope, prompt, r.window*2)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		log.Ctx(ctx).Debug().
			Str("user_id", scope.UserID).
			Str("conversation_id", scope.ConversationID).
			Msg("No relevant messages found via vector search")
		return "", nil
	}

	// Chronological order, not similarity rank. Similarity already served
	// as the relevance pre-filter.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})
	if len(candidates) > r.window {
		candidates = candidates[len(candidates)-r.window:]
	}

	metrics.RecordContextSize(len(candidates))

	var b strings.Builder
	b.WriteString(ContextHeader)
	for i, msg := range candidates {
		log.Ctx(ctx).Debug().
			Int("position", i+1).
			Str("role", msg.Role).
			Float64("similarity", 1-msg.Distance).
			Time("timestamp", msg.Timestamp).
			Msg("Context message selected")
		b.WriteString(msg.RoleLabel())
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// Window returns the configured window size.
func (r *Retriever) Window() int {
	return r.window
}
