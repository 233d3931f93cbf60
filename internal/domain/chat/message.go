package chat

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ClassName is the Weaviate class holding all chat messages.
const ClassName = "Messages"

// Message roles. Only these two values are ever persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMetadata is the provenance tag attached to messages written by this service.
const DefaultMetadata = `{"source":"dank-agent"}`

// Message is the atomic persisted unit of a conversation.
type Message struct {
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	MessageID      string    `json:"message_id"`
	ParentID       string    `json:"parent_id"`
	Timestamp      time.Time `json:"timestamp"`
	Metadata       string    `json:"metadata,omitempty"`

	// Distance is the similarity distance reported by semantic search.
	// Zero for messages fetched by exact-match queries.
	Distance float64 `json:"-"`
}

// RoleLabel returns the display label used when rendering context blocks.
func (m Message) RoleLabel() string {
	if m.Role == RoleUser {
		return "User"
	}
	return "Assistant"
}

const idSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewMessageID generates a message identifier of the form
// msg-<epoch millis>-<random suffix>-<role>. Practically unique, not
// cryptographically unique.
func NewMessageID(role string) string {
	if role == "" {
		role = "message"
	}
	var suffix strings.Builder
	for i := 0; i < 9; i++ {
		suffix.WriteByte(idSuffixAlphabet[rand.Intn(len(idSuffixAlphabet))])
	}
	return fmt.Sprintf("msg-%d-%s-%s", time.Now().UnixMilli(), suffix.String(), role)
}

// FormatTimestamp renders a timestamp the way the store expects date
// properties: UTC ISO-8601 with millisecond resolution.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
