package handlers_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aidank/chat-memory/internal/domain/chat"
)

// fakeStore is an in-memory chat.Store. Good enough to drive full turns
// end to end: inserts are ordered, searches are scope-confined, and the
// bulk operations mutate the backing slice.
type fakeStore struct {
	mu       sync.Mutex
	messages []chat.Message

	searchErr error
	insertErr error
	deleteErr error
	renameErr error

	lastHistoryLimit int
	lastListLimit    int
}

func (s *fakeStore) EnsureSchema(ctx context.Context) (string, error) {
	return chat.ClassName, nil
}

func (s *fakeStore) Insert(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if s.insertErr != nil {
		return chat.Message{}, s.insertErr
	}
	if msg.MessageID == "" {
		msg.MessageID = chat.NewMessageID(msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *fakeStore) inScope(msg chat.Message, scope chat.Scope) bool {
	return msg.UserID == scope.UserID && msg.ConversationID == scope.ConversationID
}

func (s *fakeStore) SemanticSearch(ctx context.Context, scope chat.Scope, query string, limit int) ([]chat.Message, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Message
	for _, msg := range s.messages {
		if s.inScope(msg, scope) && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeStore) FindLatestUserMessage(ctx context.Context, scope chat.Scope, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ""
	var latest time.Time
	for _, msg := range s.messages {
		if s.inScope(msg, scope) && msg.Role == chat.RoleUser && msg.Content == content && msg.Timestamp.After(latest) {
			id = msg.MessageID
			latest = msg.Timestamp
		}
	}
	return id, nil
}

func (s *fakeStore) DeleteByScope(ctx context.Context, scope chat.Scope) (int, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []chat.Message
	deleted := 0
	for _, msg := range s.messages {
		if s.inScope(msg, scope) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	s.messages = kept
	return deleted, nil
}

func (s *fakeStore) RenameScope(ctx context.Context, scope chat.Scope, newConversationID string) (int, error) {
	if s.renameErr != nil {
		return 0, s.renameErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	renamed := 0
	for i := range s.messages {
		if s.inScope(s.messages[i], scope) {
			s.messages[i].ConversationID = newConversationID
			renamed++
		}
	}
	return renamed, nil
}

func (s *fakeStore) History(ctx context.Context, scope chat.Scope, limit int) ([]chat.Message, error) {
	s.lastHistoryLimit = limit
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Message
	for _, msg := range s.messages {
		if s.inScope(msg, scope) && len(out) < limit {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *fakeStore) ListConversations(ctx context.Context, scope chat.Scope, limit int) ([]string, error) {
	s.lastListLimit = limit
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for i := len(s.messages) - 1; i >= 0 && len(ids) < limit; i-- {
		msg := s.messages[i]
		if msg.UserID != scope.UserID || seen[msg.ConversationID] {
			continue
		}
		seen[msg.ConversationID] = true
		ids = append(ids, msg.ConversationID)
	}
	return ids, nil
}

// snapshot returns a copy of the stored messages in insertion order.
func (s *fakeStore) snapshot() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// fakeAgent is a scripted AgentCaller that records the prompt it was given.
type fakeAgent struct {
	lastPrompt string
	respond    func(prompt string) (string, error)
}

func (a *fakeAgent) Prompt(ctx context.Context, prompt, userID, conversationID string) (string, error) {
	a.lastPrompt = prompt
	if a.respond != nil {
		return a.respond(prompt)
	}
	return "ok", nil
}

func newTestOrchestrator(store chat.Store) *chat.Orchestrator {
	retriever := chat.NewRetriever(store, 10)
	return chat.NewOrchestrator(store, retriever, chat.NewScopeResolver(""))
}
