// Package weaviate implements the message store client against the
// Weaviate REST and GraphQL surfaces. Bulk operations are fetch-ids-then-
// per-id-mutate because the store's batch mutation API is unavailable on
// some deployment targets; this trades atomicity for portability.
package weaviate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/configs"
	"github.com/aidank/chat-memory/internal/domain/chat"
	"github.com/aidank/chat-memory/internal/metrics"
)

const (
	// bulkPageSize caps each id-fetch pass of a bulk delete or rename.
	bulkPageSize = 500
	// maxBulkPasses bounds the pagination loop so a scope whose mutations
	// keep failing cannot spin forever.
	maxBulkPasses = 20

	searchCertainty = 0.5
)

// Client wraps the store's query and mutation surface. The resolved host is
// carried on the client and exposed via Host rather than held as shared
// process state.
type Client struct {
	host   string
	tenant string
	http   *resty.Client

	// schemaEnsured memoizes successful EnsureSchema calls per host+tenant
	// so steady-state turns skip the existence round trip.
	schemaEnsured *lru.Cache
}

// NewClient creates a store client for the configured deployment mode. In
// multi-tenant mode the API key and project headers are attached to every
// request.
func NewClient(cfg *configs.Config) *Client {
	host := cfg.ResolveWeaviateHost()

	httpClient := resty.New().
		SetBaseURL(host).
		SetHeader("User-Agent", "chat-memory/1.0")

	if cfg.Multitenant() {
		if cfg.WeaviateAPIKey != "" {
			httpClient.SetHeader("X-API-Key", cfg.WeaviateAPIKey)
		}
		if cfg.WeaviateProjectID != "" {
			httpClient.SetHeader("X-Project-ID", cfg.WeaviateProjectID)
		}
	}

	cache, _ := lru.New(8)

	return &Client{
		host:          host,
		tenant:        cfg.Tenant(),
		http:          httpClient,
		schemaEnsured: cache,
	}
}

// Host returns the resolved store base URL.
func (c *Client) Host() string {
	return c.host
}

// EnsureSchema idempotently creates the Messages class if it does not
// exist. Creation is not serialized across processes; the store is expected
// to reject or ignore a duplicate create.
func (c *Client) EnsureSchema(ctx context.Context) (string, error) {
	key := c.host + "|" + c.tenant
	if _, ok := c.schemaEnsured.Get(key); ok {
		return chat.ClassName, nil
	}

	start := time.Now()

	resp, err := c.http.R().SetContext(ctx).Get("/v1/schema/" + chat.ClassName)
	if err != nil {
		metrics.RecordStoreOp("ensure_schema", "error", time.Since(start).Seconds())
		return "", chat.NewStoreError(chat.ErrKindSchemaCreate, "schema existence check", err)
	}

	if resp.IsSuccess() {
		c.schemaEnsured.Add(key, true)
		metrics.RecordStoreOp("ensure_schema", "ok", time.Since(start).Seconds())
		return chat.ClassName, nil
	}
	if resp.StatusCode() != 404 {
		metrics.RecordStoreOp("ensure_schema", "error", time.Since(start).Seconds())
		return "", chat.NewStoreError(chat.ErrKindSchemaCreate, "schema existence check",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String()))
	}

	log.Ctx(ctx).Info().Str("class", chat.ClassName).Msg("Messages schema does not exist, creating")

	classDef := map[string]any{
		"class":       chat.ClassName,
		"description": "Chat messages",
		"properties": []map[string]any{
			{"name": "role", "dataType": []string{"text"}},
			{"name": "content", "dataType": []string{"text"}},
			{"name": "conversation_id", "dataType": []string{"text"}},
			{"name": "message_id", "dataType": []string{"text"}},
			{"name": "parent_id", "dataType": []string{"text"}},
			{"name": "timestamp", "dataType": []string{"date"}},
			{"name": "user_id", "dataType": []string{"text"}},
			{"name": "metadata", "dataType": []string{"text"}},
		},
	}

	resp, err = c.http.R().SetContext(ctx).SetBody(classDef).Post("/v1/schema")
	if err != nil {
		metrics.RecordStoreOp("ensure_schema", "error", time.Since(start).Seconds())
		return "", chat.NewStoreError(chat.ErrKindSchemaCreate, "schema create", err)
	}
	if resp.IsError() && !schemaAlreadyExists(resp) {
		metrics.RecordStoreOp("ensure_schema", "error", time.Since(start).Seconds())
		return "", chat.NewStoreError(chat.ErrKindSchemaCreate, "schema create",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	log.Ctx(ctx).Info().Str("class", chat.ClassName).Msg("Messages schema created")
	c.schemaEnsured.Add(key, true)
	metrics.RecordStoreOp("ensure_schema", "ok", time.Since(start).Seconds())
	return chat.ClassName, nil
}

// schemaAlreadyExists detects a duplicate-create race resolved by the store.
func schemaAlreadyExists(resp *resty.Response) bool {
	return resp.StatusCode() == 422 &&
		containsFold(resp.String(), "already exists")
}

// Insert writes one message, generating the message ID and timestamp when
// unset and attaching the tenant when resolved.
func (c *Client) Insert(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if msg.UserID == "" {
		msg.UserID = chat.DefaultUserID
	}
	if msg.ConversationID == "" {
		msg.ConversationID = chat.DefaultConversationID
	}
	if msg.MessageID == "" {
		msg.MessageID = chat.NewMessageID(msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Metadata == "" {
		msg.Metadata = chat.DefaultMetadata
	}

	body := map[string]any{
		"class": chat.ClassName,
		"properties": map[string]any{
			"role":            msg.Role,
			"content":         msg.Content,
			"conversation_id": msg.ConversationID,
			"message_id":      msg.MessageID,
			"parent_id":       msg.ParentID,
			"timestamp":       chat.FormatTimestamp(msg.Timestamp),
			"user_id":         msg.UserID,
			"metadata":        msg.Metadata,
		},
	}
	if c.tenant != "" {
		body["tenant"] = c.tenant
	}

	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/v1/objects")
	if err == nil && resp.IsError() {
		err = fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	if err != nil {
		metrics.RecordStoreOp("insert", "error", time.Since(start).Seconds())
		return chat.Message{}, chat.NewStoreError(chat.ErrKindWrite, "insert message", err)
	}
	metrics.RecordStoreOp("insert", "ok", time.Since(start).Seconds())

	evt := log.Ctx(ctx).Info().
		Str("role", msg.Role).
		Str("message_id", msg.MessageID).
		Str("host", c.host).
		Str("user_id", msg.UserID).
		Str("conversation_id", msg.ConversationID)
	if msg.Role == chat.RoleAssistant && msg.ParentID != "" {
		evt = evt.Str("parent_id", msg.ParentID)
	}
	evt.Msg("Stored message")

	return msg, nil
}

// SemanticSearch runs a nearText query confined to the scope's exact-match
// filters. A scope whose tenant partition does not exist yet returns an
// empty result, not an error.
func (c *Client) SemanticSearch(ctx context.Context, scope chat.Scope, query string, limit int) ([]chat.Message, error) {
	args := c.queryArgs(
		nearText(query, searchCertainty),
		andWhere(scopeFilters(scope)...),
		limitArg(limit),
	)
	fields := messageFields + " _additional { distance }"

	start := time.Now()
	rows, err := c.getMessages(ctx, args, fields)
	if err != nil {
		if tenantNotFound(err) {
			log.Ctx(ctx).Debug().Msg("Tenant does not exist yet, no previous context")
			metrics.RecordStoreOp("semantic_search", "no_tenant", time.Since(start).Seconds())
			return nil, nil
		}
		metrics.RecordStoreOp("semantic_search", "error", time.Since(start).Seconds())
		return nil, chat.NewStoreError(chat.ErrKindQuery, "semantic search", err)
	}
	metrics.RecordStoreOp("semantic_search", "ok", time.Since(start).Seconds())

	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}

// FindLatestUserMessage resolves the most recent user message in scope with
// exactly the given content, used for parent linkage. When the same text
// was sent twice in quick succession this can pick the newer of the two; a
// known limitation of content-equality matching.
func (c *Client) FindLatestUserMessage(ctx context.Context, scope chat.Scope, content string) (string, error) {
	operands := append(scopeFilters(scope),
		equalFilter("role", chat.RoleUser),
		equalFilter("content", content),
	)
	args := c.queryArgs(andWhere(operands...), limitArg(5))

	start := time.Now()
	rows, err := c.getMessages(ctx, args, "message_id content timestamp role")
	if err != nil {
		metrics.RecordStoreOp("find_parent", "error", time.Since(start).Seconds())
		return "", chat.NewStoreError(chat.ErrKindQuery, "find latest user message", err)
	}
	metrics.RecordStoreOp("find_parent", "ok", time.Since(start).Seconds())

	if len(rows) == 0 {
		return "", nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return parseTimestamp(rows[i].Timestamp).After(parseTimestamp(rows[j].Timestamp))
	})
	return rows[0].MessageID, nil
}

// History returns up to limit messages in scope, oldest first.
func (c *Client) History(ctx context.Context, scope chat.Scope, limit int) ([]chat.Message, error) {
	args := c.queryArgs(
		andWhere(scopeFilters(scope)...),
		sortBy("timestamp", "asc"),
		limitArg(limit),
	)

	start := time.Now()
	rows, err := c.getMessages(ctx, args, messageFields)
	if err != nil {
		if tenantNotFound(err) {
			metrics.RecordStoreOp("history", "no_tenant", time.Since(start).Seconds())
			return nil, nil
		}
		metrics.RecordStoreOp("history", "error", time.Since(start).Seconds())
		return nil, chat.NewStoreError(chat.ErrKindQuery, "history", err)
	}
	metrics.RecordStoreOp("history", "ok", time.Since(start).Seconds())

	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}

// ListConversations returns the distinct conversation IDs for the scope's
// user, most recently active first.
func (c *Client) ListConversations(ctx context.Context, scope chat.Scope, limit int) ([]string, error) {
	args := c.queryArgs(
		singleWhere(equalFilter("user_id", scope.UserID)),
		sortBy("timestamp", "desc"),
		limitArg(limit),
	)

	start := time.Now()
	rows, err := c.getMessages(ctx, args, "conversation_id")
	if err != nil {
		if tenantNotFound(err) {
			metrics.RecordStoreOp("list_conversations", "no_tenant", time.Since(start).Seconds())
			return nil, nil
		}
		metrics.RecordStoreOp("list_conversations", "error", time.Since(start).Seconds())
		return nil, chat.NewStoreError(chat.ErrKindQuery, "list conversations", err)
	}
	metrics.RecordStoreOp("list_conversations", "ok", time.Since(start).Seconds())

	seen := make(map[string]bool, len(rows))
	var ids []string
	for _, row := range rows {
		if row.ConversationID == "" || seen[row.ConversationID] {
			continue
		}
		seen[row.ConversationID] = true
		ids = append(ids, row.ConversationID)
	}
	return ids, nil
}

// DeleteByScope removes every message in scope, paging through object IDs
// and deleting each individually. Partial failures are tolerated and not
// rolled back.
func (c *Client) DeleteByScope(ctx context.Context, scope chat.Scope) (int, error) {
	start := time.Now()
	deleted := 0

	for pass := 0; pass < maxBulkPasses; pass++ {
		ids, err := c.fetchObjectIDs(ctx, scope, bulkPageSize)
		if err != nil {
			if tenantNotFound(err) || deleted > 0 {
				break
			}
			metrics.RecordStoreOp("delete_scope", "error", time.Since(start).Seconds())
			return 0, chat.NewStoreError(chat.ErrKindWrite, "delete by scope", err)
		}
		if len(ids) == 0 {
			break
		}

		succeeded := 0
		for _, id := range ids {
			req := c.http.R().SetContext(ctx)
			if c.tenant != "" {
				req.SetQueryParam("tenant", c.tenant)
			}
			resp, err := req.Delete("/v1/objects/" + id)
			if err != nil || resp.IsError() {
				log.Ctx(ctx).Warn().Err(err).Str("object_id", id).Msg("Failed to delete message object")
				continue
			}
			succeeded++
		}
		deleted += succeeded

		// Nothing succeeded this pass: the same IDs would come back forever.
		if succeeded == 0 || len(ids) < bulkPageSize {
			break
		}
	}

	metrics.RecordStoreOp("delete_scope", "ok", time.Since(start).Seconds())
	log.Ctx(ctx).Info().
		Int("deleted", deleted).
		Str("user_id", scope.UserID).
		Str("conversation_id", scope.ConversationID).
		Msg("Cleared conversation scope")
	return deleted, nil
}

// RenameScope patches conversation_id on every message in scope, paging
// through object IDs. Best-effort, no atomicity across the batch.
func (c *Client) RenameScope(ctx context.Context, scope chat.Scope, newConversationID string) (int, error) {
	start := time.Now()
	renamed := 0

	for pass := 0; pass < maxBulkPasses; pass++ {
		ids, err := c.fetchObjectIDs(ctx, scope, bulkPageSize)
		if err != nil {
			if tenantNotFound(err) || renamed > 0 {
				break
			}
			metrics.RecordStoreOp("rename_scope", "error", time.Since(start).Seconds())
			return 0, chat.NewStoreError(chat.ErrKindWrite, "rename scope", err)
		}
		if len(ids) == 0 {
			break
		}

		succeeded := 0
		for _, id := range ids {
			req := c.http.R().SetContext(ctx).SetBody(map[string]any{
				"properties": map[string]any{"conversation_id": newConversationID},
			})
			if c.tenant != "" {
				req.SetQueryParam("tenant", c.tenant)
			}
			resp, err := req.Patch("/v1/objects/" + chat.ClassName + "/" + id)
			if err != nil || resp.IsError() {
				log.Ctx(ctx).Warn().Err(err).Str("object_id", id).Msg("Failed to patch message object")
				continue
			}
			succeeded++
		}
		renamed += succeeded

		if succeeded == 0 || len(ids) < bulkPageSize {
			break
		}
	}

	metrics.RecordStoreOp("rename_scope", "ok", time.Since(start).Seconds())
	log.Ctx(ctx).Info().
		Int("renamed", renamed).
		Str("user_id", scope.UserID).
		Str("old_conversation_id", scope.ConversationID).
		Str("new_conversation_id", newConversationID).
		Msg("Renamed conversation scope")
	return renamed, nil
}

// Ready probes the store's readiness endpoint.
func (c *Client) Ready(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/.well-known/ready")
	return err == nil && resp.IsSuccess()
}

func (c *Client) queryArgs(args ...string) []string {
	if c.tenant == "" {
		return args
	}
	return append([]string{tenantArg(c.tenant)}, args...)
}

func (c *Client) fetchObjectIDs(ctx context.Context, scope chat.Scope, limit int) ([]string, error) {
	args := c.queryArgs(andWhere(scopeFilters(scope)...), limitArg(limit))
	rows, err := c.getMessages(ctx, args, "_additional { id }")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Additional.ID != "" {
			ids = append(ids, row.Additional.ID)
		}
	}
	return ids, nil
}

func (c *Client) getMessages(ctx context.Context, args []string, fields string) ([]gqlMessage, error) {
	query := getQuery(chat.ClassName, args, fields)

	var out gqlResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"query": query}).
		SetResult(&out).
		Post("/v1/graphql")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("graphql status %d: %s", resp.StatusCode(), resp.String())
	}
	if err := out.err(); err != nil {
		return nil, err
	}
	return out.Data.Get[chat.ClassName], nil
}

func (row gqlMessage) toMessage() chat.Message {
	msg := chat.Message{
		Role:           row.Role,
		Content:        row.Content,
		ConversationID: row.ConversationID,
		UserID:         row.UserID,
		MessageID:      row.MessageID,
		ParentID:       row.ParentID,
		Timestamp:      parseTimestamp(row.Timestamp),
		Metadata:       row.Metadata,
	}
	if row.Additional.Distance != nil {
		msg.Distance = *row.Additional.Distance
	}
	return msg
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
