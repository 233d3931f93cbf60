package weaviate_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidank/chat-memory/internal/configs"
	"github.com/aidank/chat-memory/internal/domain/chat"
	"github.com/aidank/chat-memory/internal/infrastructure/weaviate"
)

// fakeWeaviate emulates the store's REST and GraphQL surfaces in memory.
type fakeWeaviate struct {
	mu sync.Mutex

	schemaExists  bool
	schemaGets    int
	schemaCreates int

	objects        map[string]map[string]any
	nextObjectID   int
	lastInsertBody map[string]any
	lastHeaders    http.Header

	queries []string

	// graphqlFunc, when set, overrides the response for non-id queries.
	graphqlFunc func(query string) any
}

func newFakeWeaviate() *fakeWeaviate {
	return &fakeWeaviate{objects: make(map[string]map[string]any)}
}

func (f *fakeWeaviate) addObject(conversationID, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextObjectID++
	id := fmt.Sprintf("obj-%04d", f.nextObjectID)
	f.objects[id] = map[string]any{
		"conversation_id": conversationID,
		"user_id":         userID,
	}
	return id
}

var convFilterRe = regexp.MustCompile(`\{ path: \["conversation_id"\], operator: Equal, valueString: "([^"]*)" \}`)

func (f *fakeWeaviate) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/schema/"+chat.ClassName, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.schemaGets++
		if f.schemaExists {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"class":"Messages"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/v1/schema", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.schemaCreates++
		f.schemaExists = true
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/v1/objects", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastInsertBody = body
		f.lastHeaders = r.Header.Clone()
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"id":"new-object"}`)
	})

	mux.HandleFunc("/v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.queries = append(f.queries, body.Query)
		f.mu.Unlock()

		var payload any
		switch {
		case strings.Contains(body.Query, "_additional { id }"):
			payload = f.idsPayload(body.Query)
		case f.graphqlFunc != nil:
			payload = f.graphqlFunc(body.Query)
		default:
			payload = messagesPayload(nil)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})

	mux.HandleFunc("/v1/objects/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodDelete:
			id := strings.TrimPrefix(r.URL.Path, "/v1/objects/")
			if _, ok := f.objects[id]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(f.objects, id)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPatch:
			id := strings.TrimPrefix(r.URL.Path, "/v1/objects/"+chat.ClassName+"/")
			obj, ok := f.objects[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var body struct {
				Properties map[string]any `json:"properties"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			for k, v := range body.Properties {
				obj[k] = v
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	return mux
}

// idsPayload serves the fetch-ids leg of bulk operations: all objects still
// matching the conversation filter, capped at 500.
func (f *fakeWeaviate) idsPayload(query string) any {
	conv := ""
	if m := convFilterRe.FindStringSubmatch(query); m != nil {
		conv = m[1]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []map[string]any
	for id, obj := range f.objects {
		if obj["conversation_id"] == conv {
			rows = append(rows, map[string]any{"_additional": map[string]any{"id": id}})
			if len(rows) == 500 {
				break
			}
		}
	}
	return messagesPayload(rows)
}

func messagesPayload(rows []map[string]any) any {
	if rows == nil {
		rows = []map[string]any{}
	}
	return map[string]any{
		"data": map[string]any{
			"Get": map[string]any{chat.ClassName: rows},
		},
	}
}

func localConfig(baseURL string) *configs.Config {
	return &configs.Config{
		WeaviateEnv:       configs.ModeLocal,
		WeaviateLocalHost: baseURL,
	}
}

func prodConfig(baseURL string) *configs.Config {
	return &configs.Config{
		WeaviateEnv:       configs.ModeProd,
		WeaviateHost:      baseURL,
		WeaviateAPIKey:    "secret-key",
		WeaviateProjectID: "proj-1",
	}
}

func TestEnsureSchemaCreatesWhenMissing(t *testing.T) {
	fake := newFakeWeaviate()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	class, err := client.EnsureSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chat.ClassName, class)
	assert.Equal(t, 1, fake.schemaGets)
	assert.Equal(t, 1, fake.schemaCreates)
}

func TestEnsureSchemaIsIdempotentAndMemoized(t *testing.T) {
	fake := newFakeWeaviate()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	first, err := client.EnsureSchema(context.Background())
	require.NoError(t, err)
	second, err := client.EnsureSchema(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.schemaCreates, "second call must not create again")
	assert.Equal(t, 1, fake.schemaGets, "second call skips the existence check entirely")
}

func TestEnsureSchemaExistingClass(t *testing.T) {
	fake := newFakeWeaviate()
	fake.schemaExists = true
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	_, err := client.EnsureSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fake.schemaCreates)
}

func TestInsertGeneratesIdentifiersAndDefaults(t *testing.T) {
	fake := newFakeWeaviate()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	msg, err := client.Insert(context.Background(), chat.Message{
		Role:    chat.RoleUser,
		Content: "hello",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^msg-\d{13}-[0-9a-z]{9}-user$`, msg.MessageID)
	assert.False(t, msg.Timestamp.IsZero())

	props := fake.lastInsertBody["properties"].(map[string]any)
	assert.Equal(t, "hello", props["content"])
	assert.Equal(t, msg.MessageID, props["message_id"])
	assert.Equal(t, chat.DefaultUserID, props["user_id"])
	assert.Equal(t, chat.DefaultConversationID, props["conversation_id"])
	assert.Equal(t, chat.DefaultMetadata, props["metadata"])
	assert.Equal(t, "", props["parent_id"])
	assert.NotEmpty(t, props["timestamp"])
	_, hasTenant := fake.lastInsertBody["tenant"]
	assert.False(t, hasTenant, "local mode never sends a tenant")
}

func TestInsertAttachesTenantAndAuthHeaders(t *testing.T) {
	fake := newFakeWeaviate()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(prodConfig(server.URL))

	_, err := client.Insert(context.Background(), chat.Message{
		Role:           chat.RoleAssistant,
		Content:        "hi",
		UserID:         "u-1",
		ConversationID: "c-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "proj-1", fake.lastInsertBody["tenant"])
	assert.Equal(t, "secret-key", fake.lastHeaders.Get("X-API-Key"))
	assert.Equal(t, "proj-1", fake.lastHeaders.Get("X-Project-ID"))
}

func TestSemanticSearchBuildsScopedQuery(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any {
		return messagesPayload([]map[string]any{
			{
				"role":            "user",
				"content":         "What is 2+2?",
				"conversation_id": "c-1",
				"user_id":         "u-1",
				"message_id":      "msg-1",
				"timestamp":       "2024-05-01T12:00:00.000Z",
				"_additional":     map[string]any{"distance": 0.21},
			},
			{
				"role":            "assistant",
				"content":         "4",
				"conversation_id": "c-1",
				"user_id":         "u-1",
				"message_id":      "msg-2",
				"timestamp":       "2024-05-01T12:00:05.000Z",
				"_additional":     map[string]any{"distance": 0.34},
			},
		})
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))
	scope := chat.Scope{UserID: "u-1", ConversationID: "c-1"}

	msgs, err := client.SemanticSearch(context.Background(), scope, "arithmetic", 20)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "What is 2+2?", msgs[0].Content)
	assert.InDelta(t, 0.21, msgs[0].Distance, 1e-9)
	assert.Equal(t, 2024, msgs[0].Timestamp.Year())

	require.Len(t, fake.queries, 1)
	query := fake.queries[0]
	assert.Contains(t, query, `nearText: { concepts: ["arithmetic"], certainty: 0.50 }`)
	assert.Contains(t, query, `{ path: ["conversation_id"], operator: Equal, valueString: "c-1" }`)
	assert.Contains(t, query, `{ path: ["user_id"], operator: Equal, valueString: "u-1" }`)
	assert.Contains(t, query, "limit: 20")
}

func TestSemanticSearchMissingTenantIsEmptyNotError(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any {
		return map[string]any{
			"errors": []map[string]any{
				{"message": "explorer: list class: search: tenant not found"},
			},
		}
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	msgs, err := client.SemanticSearch(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-new"}, "anything", 20)
	require.NoError(t, err, "a brand-new conversation is not an error")
	assert.Empty(t, msgs)
}

func TestSemanticSearchClassifiesQueryErrors(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any {
		return map[string]any{
			"errors": []map[string]any{{"message": "vectorizer unavailable"}},
		}
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	_, err := client.SemanticSearch(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-1"}, "anything", 20)
	require.Error(t, err)
	assert.True(t, chat.IsStoreErrorKind(err, chat.ErrKindQuery))
}

func TestFindLatestUserMessagePicksNewestMatch(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any {
		return messagesPayload([]map[string]any{
			{"message_id": "msg-old", "content": "hello", "role": "user", "timestamp": "2024-05-01T11:00:00.000Z"},
			{"message_id": "msg-new", "content": "hello", "role": "user", "timestamp": "2024-05-01T12:30:00.000Z"},
			{"message_id": "msg-mid", "content": "hello", "role": "user", "timestamp": "2024-05-01T12:00:00.000Z"},
		})
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	id, err := client.FindLatestUserMessage(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-1"}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "msg-new", id)

	query := fake.queries[0]
	assert.Contains(t, query, `{ path: ["role"], operator: Equal, valueString: "user" }`)
	assert.Contains(t, query, `{ path: ["content"], operator: Equal, valueString: "hello" }`)
	assert.Contains(t, query, "limit: 5")
}

func TestFindLatestUserMessageEmptyScope(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any { return messagesPayload(nil) }
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	id, err := client.FindLatestUserMessage(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-1"}, "never sent")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDeleteByScopePaginatesPast500(t *testing.T) {
	fake := newFakeWeaviate()
	for i := 0; i < 750; i++ {
		fake.addObject("c-1", "u-1")
	}
	// A second scope that must survive the delete untouched.
	fake.addObject("c-2", "u-1")
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	deleted, err := client.DeleteByScope(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, 750, deleted)
	assert.Len(t, fake.objects, 1, "other scopes are untouched")
	assert.GreaterOrEqual(t, len(fake.queries), 2, "conversations past the page size take extra passes")
}

func TestRenameScopeMovesFullMembership(t *testing.T) {
	fake := newFakeWeaviate()
	ids := []string{
		fake.addObject("c-old", "u-1"),
		fake.addObject("c-old", "u-1"),
		fake.addObject("c-old", "u-1"),
	}
	keep := fake.addObject("c-keep", "u-1")
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	renamed, err := client.RenameScope(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-old"}, "c-new")
	require.NoError(t, err)
	assert.Equal(t, 3, renamed)

	for _, id := range ids {
		assert.Equal(t, "c-new", fake.objects[id]["conversation_id"])
	}
	assert.Equal(t, "c-keep", fake.objects[keep]["conversation_id"])
}

func TestHistoryRequestsChronologicalOrder(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any {
		return messagesPayload([]map[string]any{
			{"role": "user", "content": "first", "timestamp": "2024-05-01T12:00:00.000Z"},
			{"role": "assistant", "content": "second", "timestamp": "2024-05-01T12:00:05.000Z"},
		})
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	msgs, err := client.History(context.Background(), chat.Scope{UserID: "u-1", ConversationID: "c-1"}, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)

	assert.Contains(t, fake.queries[0], `sort: [{ path: ["timestamp"], order: asc }]`)
	assert.Contains(t, fake.queries[0], "limit: 50")
}

func TestListConversationsDedupes(t *testing.T) {
	fake := newFakeWeaviate()
	fake.graphqlFunc = func(query string) any {
		return messagesPayload([]map[string]any{
			{"conversation_id": "c-2"},
			{"conversation_id": "c-1"},
			{"conversation_id": "c-2"},
			{"conversation_id": "c-3"},
			{"conversation_id": "c-1"},
		})
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := weaviate.NewClient(localConfig(server.URL))

	ids, err := client.ListConversations(context.Background(), chat.Scope{UserID: "u-1"}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"c-2", "c-1", "c-3"}, ids)

	assert.Contains(t, fake.queries[0], `sort: [{ path: ["timestamp"], order: desc }]`)
}
