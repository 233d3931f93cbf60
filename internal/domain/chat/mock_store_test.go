package chat_test

import (
	"context"

	"github.com/aidank/chat-memory/internal/domain/chat"
)

// mockStore is a function-field mock of chat.Store. It records the order of
// operations so tests can assert sequencing guarantees.
type mockStore struct {
	calls []string

	EnsureSchemaFunc          func(ctx context.Context) (string, error)
	InsertFunc                func(ctx context.Context, msg chat.Message) (chat.Message, error)
	FindLatestUserMessageFunc func(ctx context.Context, scope chat.Scope, content string) (string, error)
	SemanticSearchFunc        func(ctx context.Context, scope chat.Scope, query string, limit int) ([]chat.Message, error)
	DeleteByScopeFunc         func(ctx context.Context, scope chat.Scope) (int, error)
	RenameScopeFunc           func(ctx context.Context, scope chat.Scope, newConversationID string) (int, error)
	HistoryFunc               func(ctx context.Context, scope chat.Scope, limit int) ([]chat.Message, error)
	ListConversationsFunc     func(ctx context.Context, scope chat.Scope, limit int) ([]string, error)
}

func (m *mockStore) EnsureSchema(ctx context.Context) (string, error) {
	m.calls = append(m.calls, "ensure_schema")
	if m.EnsureSchemaFunc != nil {
		return m.EnsureSchemaFunc(ctx)
	}
	return chat.ClassName, nil
}

func (m *mockStore) Insert(ctx context.Context, msg chat.Message) (chat.Message, error) {
	m.calls = append(m.calls, "insert")
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, msg)
	}
	return msg, nil
}

func (m *mockStore) FindLatestUserMessage(ctx context.Context, scope chat.Scope, content string) (string, error) {
	m.calls = append(m.calls, "find_latest")
	if m.FindLatestUserMessageFunc != nil {
		return m.FindLatestUserMessageFunc(ctx, scope, content)
	}
	return "", nil
}

func (m *mockStore) SemanticSearch(ctx context.Context, scope chat.Scope, query string, limit int) ([]chat.Message, error) {
	m.calls = append(m.calls, "semantic_search")
	if m.SemanticSearchFunc != nil {
		return m.SemanticSearchFunc(ctx, scope, query, limit)
	}
	return nil, nil
}

func (m *mockStore) DeleteByScope(ctx context.Context, scope chat.Scope) (int, error) {
	m.calls = append(m.calls, "delete_scope")
	if m.DeleteByScopeFunc != nil {
		return m.DeleteByScopeFunc(ctx, scope)
	}
	return 0, nil
}

func (m *mockStore) RenameScope(ctx context.Context, scope chat.Scope, newConversationID string) (int, error) {
	m.calls = append(m.calls, "rename_scope")
	if m.RenameScopeFunc != nil {
		return m.RenameScopeFunc(ctx, scope, newConversationID)
	}
	return 0, nil
}

func (m *mockStore) History(ctx context.Context, scope chat.Scope, limit int) ([]chat.Message, error) {
	m.calls = append(m.calls, "history")
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, scope, limit)
	}
	return nil, nil
}

func (m *mockStore) ListConversations(ctx context.Context, scope chat.Scope, limit int) ([]string, error) {
	m.calls = append(m.calls, "list_conversations")
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx, scope, limit)
	}
	return nil, nil
}
