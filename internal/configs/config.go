package configs

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Deployment modes. Local runs against a single-tenant store with no auth
// headers; prod runs against the hosted multi-tenant store.
const (
	ModeLocal = "local"
	ModeProd  = "prod"
)

// Config is resolved once at process start and passed into constructors.
type Config struct {
	HTTPPort int `env:"CHAT_SERVER_PORT" envDefault:"8090"`

	// Deployment mode: "local" or "prod"
	WeaviateEnv       string `env:"WEAVIATE_ENV" envDefault:"prod"`
	WeaviateHost      string `env:"WEAVIATE_HOST" envDefault:"https://weaviate.ai-dank.xyz"`
	WeaviateLocalHost string `env:"WEAVIATE_LOCAL_HOST" envDefault:"http://host.docker.internal:8080"`
	WeaviateAPIKey    string `env:"WEAVIATE_DANK_API_KEY"`
	WeaviateProjectID string `env:"WEAVIATE_DANK_PROJECT_ID"`

	AgentURL     string        `env:"AGENT_URL" envDefault:"http://localhost:3000"`
	AgentTimeout time.Duration `env:"AGENT_TIMEOUT" envDefault:"60s"`

	ContextWindow int `env:"CONTEXT_WINDOW" envDefault:"10"`

	// RequestTimeout must leave room for the agent call underneath it.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`

	APIKey string `env:"CHAT_SERVER_API_KEY"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.WeaviateEnv = strings.ToLower(strings.TrimSpace(cfg.WeaviateEnv))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	return cfg, nil
}

// Multitenant reports whether the deployment runs against the shared
// multi-tenant store.
func (c *Config) Multitenant() bool {
	return c.WeaviateEnv != ModeLocal
}

// Tenant returns the tenant identifier for multi-tenant operations, or ""
// in local mode.
func (c *Config) Tenant() string {
	if !c.Multitenant() {
		return ""
	}
	return c.WeaviateProjectID
}

// ResolveWeaviateHost returns the effective store base URL for the
// configured mode, normalized to include a scheme.
func (c *Config) ResolveWeaviateHost() string {
	if c.Multitenant() {
		return normalizeBaseURL(c.WeaviateHost, "https")
	}
	return normalizeBaseURL(c.WeaviateLocalHost, "http")
}

func normalizeBaseURL(raw, fallbackScheme string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = fallbackScheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	return u.Scheme + "://" + u.Host
}
