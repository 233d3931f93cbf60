// Package agent is the client for the external LLM agent runtime. The
// agent call is the turn's primary deliverable: its failure is the one
// error class surfaced to the end user.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aidank/chat-memory/internal/configs"
	"github.com/aidank/chat-memory/internal/metrics"
)

// responseFooterSeparator precedes the metadata footer some runtimes append
// to completions.
const responseFooterSeparator = "\n\n---\n"

// CallError reports a failed or timed-out completion call.
type CallError struct {
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent call failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("agent call failed: %v", e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Client talks to the agent runtime's prompting server.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates an agent client. The timeout covers the whole
// completion call and is sized for LLM latency.
func NewClient(cfg *configs.Config) *Client {
	baseURL := strings.TrimRight(cfg.AgentURL, "/")
	return &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", "chat-memory/1.0").
			SetTimeout(cfg.AgentTimeout),
	}
}

type promptRequest struct {
	Prompt         string `json:"prompt"`
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type promptResponse struct {
	Response string `json:"response"`
	Message  string `json:"message"`
}

// Prompt sends a prompt to the agent and returns the completion text.
// Identity fields ride along so the runtime's lifecycle hooks can resolve
// the conversation scope.
func (c *Client) Prompt(ctx context.Context, prompt, userID, conversationID string) (string, error) {
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(promptRequest{Prompt: prompt, UserID: userID, ConversationID: conversationID}).
		Post("/prompt")
	if err != nil {
		metrics.RecordAgentCall("error", time.Since(start).Seconds())
		return "", &CallError{Err: err}
	}
	if resp.IsError() {
		metrics.RecordAgentCall("error", time.Since(start).Seconds())
		return "", &CallError{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("%s", strings.TrimSpace(resp.String())),
		}
	}
	metrics.RecordAgentCall("ok", time.Since(start).Seconds())

	return extractResponseText(resp.Body()), nil
}

// extractResponseText handles the runtime's response shapes: a JSON object
// with a response or message field, a JSON string, or a raw text body. Any
// metadata footer is stripped.
func extractResponseText(body []byte) string {
	text := string(body)

	var obj promptResponse
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Response != "" {
			text = obj.Response
		} else if obj.Message != "" {
			text = obj.Message
		}
	} else {
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			text = s
		}
	}

	text, _, _ = strings.Cut(text, responseFooterSeparator)
	return strings.TrimSpace(text)
}

// Health probes the agent's health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	return err == nil && resp.IsSuccess()
}
