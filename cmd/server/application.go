package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aidank/chat-memory/internal/configs"
	"github.com/aidank/chat-memory/internal/domain/chat"
	"github.com/aidank/chat-memory/internal/infrastructure/agent"
	"github.com/aidank/chat-memory/internal/infrastructure/weaviate"
	"github.com/aidank/chat-memory/internal/interfaces/httpserver/handlers"
	"github.com/aidank/chat-memory/internal/interfaces/httpserver/middleware"
	"github.com/aidank/chat-memory/internal/metrics"
)

type Application struct {
	server *http.Server
}

func newApplication(cfg *configs.Config) (*Application, error) {
	store := weaviate.NewClient(cfg)
	agentClient := agent.NewClient(cfg)

	scopes := chat.NewScopeResolver(cfg.Tenant())
	retriever := chat.NewRetriever(store, cfg.ContextWindow)
	orchestrator := chat.NewOrchestrator(store, retriever, scopes)

	hookHandler := handlers.NewHookHandler(orchestrator)
	chatHandler := handlers.NewChatHandler(orchestrator, agentClient)
	conversationHandler := handlers.NewConversationHandler(store, scopes)
	healthHandler := handlers.NewHealthHandler(store, agentClient)
	proxyHandler := handlers.NewProxyHandler(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.HandleHealth)

	mux.HandleFunc("/v1/chat", chatHandler.HandleChat)
	mux.HandleFunc("/v1/hooks/turn-start", hookHandler.HandleTurnStart)
	mux.HandleFunc("/v1/hooks/turn-end", hookHandler.HandleTurnEnd)

	mux.HandleFunc("/v1/conversations", conversationHandler.HandleConversations)
	mux.HandleFunc("/v1/conversations/history", conversationHandler.HandleHistory)
	mux.HandleFunc("/v1/conversations/rename", conversationHandler.HandleRename)

	// Pass-through relays for the browser UI
	mux.HandleFunc("/api/agent/", proxyHandler.HandleAgent)
	mux.HandleFunc("/api/weaviate/", proxyHandler.HandleWeaviate)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	handler := middleware.TimeoutMiddleware(cfg.RequestTimeout)(mux)
	handler = middleware.AuthMiddleware(cfg.APIKey)(handler)
	handler = middleware.RequestIDMiddleware()(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	log.Info().
		Str("mode", cfg.WeaviateEnv).
		Str("weaviate_host", store.Host()).
		Str("agent_url", cfg.AgentURL).
		Msg("Application wired")

	return &Application{server: server}, nil
}

func (a *Application) Start(ctx context.Context) error {
	log.Info().Msg("Starting Chat Memory Service")

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.server.Addr).Msg("Chat Memory Service listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
