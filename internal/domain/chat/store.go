package chat

import "context"

// Store is the persistence surface for conversation messages. The store
// exclusively owns write access to the persisted schema; nothing else
// writes directly.
//
// Errors returned by implementations are *StoreError values classified by
// kind (schema, query, write). A semantic search against a scope whose
// underlying partition does not exist yet is an expected condition for a
// brand-new conversation and returns an empty result, not an error.
type Store interface {
	// EnsureSchema idempotently creates the Messages schema if absent and
	// returns the class name. Safe to call concurrently; the store is
	// expected to reject or ignore duplicate creates.
	EnsureSchema(ctx context.Context) (string, error)

	// Insert writes one message, generating MessageID and Timestamp when
	// unset, and returns the message as written.
	Insert(ctx context.Context, msg Message) (Message, error)

	// FindLatestUserMessage returns the message ID of the most recent
	// user-role message in scope whose content exactly equals the given
	// text, or "" when none matches.
	FindLatestUserMessage(ctx context.Context, scope Scope, content string) (string, error)

	// SemanticSearch returns up to limit messages in scope nearest by
	// concept similarity to query, each annotated with a distance.
	SemanticSearch(ctx context.Context, scope Scope, query string, limit int) ([]Message, error)

	// DeleteByScope removes all messages in scope, paging through object
	// IDs and deleting each individually. Best-effort: partial failures
	// are tolerated. Returns the number of objects deleted.
	DeleteByScope(ctx context.Context, scope Scope) (int, error)

	// RenameScope relabels every message in scope with a new conversation
	// ID, paging and patching per object. Best-effort, no atomicity across
	// the batch. Returns the number of objects patched.
	RenameScope(ctx context.Context, scope Scope, newConversationID string) (int, error)

	// History returns up to limit messages in scope in chronological order.
	History(ctx context.Context, scope Scope, limit int) ([]Message, error)

	// ListConversations returns the distinct conversation IDs for the
	// scope's user, most recently active first.
	ListConversations(ctx context.Context, scope Scope, limit int) ([]string, error)
}
