// Ace chat proxy server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/ace-chat/internal/api"
	"github.com/ashureev/ace-chat/internal/config"
	"github.com/ashureev/ace-chat/internal/live"
	"github.com/ashureev/ace-chat/internal/middleware"
	"github.com/ashureev/ace-chat/internal/proxy"
	"github.com/ashureev/ace-chat/internal/upstream"
	"github.com/ashureev/ace-chat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"chat_url", cfg.ChatAPIURL,
		"feedback_configured", cfg.FeedbackConfigured(),
		"upstream_timeout", cfg.UpstreamTimeout,
	)
	if !cfg.FeedbackConfigured() {
		slog.Warn("Feedback URL not configured; feedback requests will fail")
	}

	// Initialize services.
	client := upstream.NewClient(cfg.UpstreamTimeout)
	proxySvc := proxy.NewService(cfg, client, logger)
	registry := live.NewRegistry()

	// Initialize handlers.
	proxyHandler := proxy.NewHandler(proxySvc, cfg.MaxRequestBodySize)
	wsHandler := live.NewHandler(proxySvc, registry, cfg.AllowedOrigins, cfg.IsDevelopment(), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	api.RegisterRoutes(r)
	proxyHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve the embedded chat page.
	spa := web.SPAHandler(api.ChatPagePath)
	r.Handle(api.ChatPagePath, spa)
	r.Handle(api.ChatPagePath+"/*", spa)

	// WriteTimeout must outlast UPSTREAM_TIMEOUT. Websockets are hijacked and unaffected.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "open_conversations", registry.Count())
	registry.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
