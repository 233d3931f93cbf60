package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/configs"
)

// ProxyHandler relays browser requests to the agent and store hosts so
// credentials stay server-side. Pure byte forwarding: method, headers and
// body pass through verbatim, with auth headers injected on the store leg.
type ProxyHandler struct {
	agentBase    string
	weaviateBase string
	apiKey       string
	projectID    string
	multitenant  bool
	http         *http.Client
}

func NewProxyHandler(cfg *configs.Config) *ProxyHandler {
	return &ProxyHandler{
		agentBase:    strings.TrimRight(cfg.AgentURL, "/"),
		weaviateBase: cfg.ResolveWeaviateHost(),
		apiKey:       cfg.WeaviateAPIKey,
		projectID:    cfg.WeaviateProjectID,
		multitenant:  cfg.Multitenant(),
		http:         &http.Client{},
	}
}

// HandleAgent relays /api/agent/* to the agent host.
func (h *ProxyHandler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/agent")
	h.relay(w, r, h.agentBase+suffix, false)
}

// HandleWeaviate relays /api/weaviate/* to the store host, injecting the
// API key and project headers kept out of the browser.
func (h *ProxyHandler) HandleWeaviate(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/weaviate")
	h.relay(w, r, h.weaviateBase+suffix, true)
}

func (h *ProxyHandler) relay(w http.ResponseWriter, r *http.Request, target string, injectStoreAuth bool) {
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	for key, values := range r.Header {
		if strings.EqualFold(key, "Host") {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if injectStoreAuth && h.multitenant {
		if h.apiKey != "" {
			req.Header.Set("X-API-Key", h.apiKey)
		}
		if h.projectID != "" {
			req.Header.Set("X-Project-ID", h.projectID)
		}
	}

	upstream, err := h.http.Do(req)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("target", target).Msg("Proxy request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer upstream.Body.Close()

	for key, values := range upstream.Header {
		// The relayed body is already decoded and re-framed.
		if strings.EqualFold(key, "Transfer-Encoding") || strings.EqualFold(key, "Content-Encoding") {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(upstream.StatusCode)
	if _, err := io.Copy(w, upstream.Body); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to relay response body")
	}
}
