package handlers

import (
	"context"
	"net/http"

	"github.com/aidank/chat-memory/internal/interfaces/httpserver/responses"
)

// StoreProber reports whether the message store is reachable.
type StoreProber interface {
	Ready(ctx context.Context) bool
}

// AgentProber reports whether the agent runtime is reachable.
type AgentProber interface {
	Health(ctx context.Context) bool
}

// HealthHandler answers liveness probes. Dependency health rides along as
// informational fields; the process itself is always "ok" once serving.
type HealthHandler struct {
	store StoreProber
	agent AgentProber
}

func NewHealthHandler(store StoreProber, agent AgentProber) *HealthHandler {
	return &HealthHandler{store: store, agent: agent}
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	responses.JSON(w, r, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"weaviate": h.store.Ready(r.Context()),
		"agent":    h.agent.Health(r.Context()),
	})
}
