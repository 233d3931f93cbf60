package weaviate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aidank/chat-memory/internal/domain/chat"
)

// messageFields are the properties fetched for full message reads.
const messageFields = "role content conversation_id message_id parent_id timestamp user_id metadata"

func gqlString(s string) string {
	return strconv.Quote(s)
}

func equalFilter(path, value string) string {
	return fmt.Sprintf("{ path: [%s], operator: Equal, valueString: %s }", gqlString(path), gqlString(value))
}

// scopeFilters are the exact-match operands that confine every read and
// bulk mutation to one conversation scope.
func scopeFilters(scope chat.Scope) []string {
	return []string{
		equalFilter("conversation_id", scope.ConversationID),
		equalFilter("user_id", scope.UserID),
	}
}

func andWhere(operands ...string) string {
	return fmt.Sprintf("where: { operator: And, operands: [%s] }", strings.Join(operands, ", "))
}

func singleWhere(operand string) string {
	return "where: " + operand
}

func nearText(concept string, certainty float64) string {
	return fmt.Sprintf("nearText: { concepts: [%s], certainty: %.2f }", gqlString(concept), certainty)
}

func sortBy(path, order string) string {
	return fmt.Sprintf("sort: [{ path: [%s], order: %s }]", gqlString(path), order)
}

func limitArg(n int) string {
	return fmt.Sprintf("limit: %d", n)
}

func tenantArg(tenant string) string {
	return fmt.Sprintf("tenant: %s", gqlString(tenant))
}

func getQuery(class string, args []string, fields string) string {
	return fmt.Sprintf("{ Get { %s(%s) { %s } } }", class, strings.Join(args, ", "), fields)
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlAdditional struct {
	ID       string   `json:"id"`
	Distance *float64 `json:"distance"`
}

type gqlMessage struct {
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	MessageID      string        `json:"message_id"`
	ParentID       string        `json:"parent_id"`
	Timestamp      string        `json:"timestamp"`
	Metadata       string        `json:"metadata"`
	Additional     gqlAdditional `json:"_additional"`
}

type gqlResponse struct {
	Data struct {
		Get map[string][]gqlMessage `json:"Get"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

func (r *gqlResponse) err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// tenantNotFound matches the store's error for a tenant partition that has
// not been created yet. Expected for brand-new conversations: the tenant is
// created on first write.
func tenantNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "tenant not found")
}
