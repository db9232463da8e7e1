// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iyunix/go-chatwidget/internal/app"
	"github.com/iyunix/go-chatwidget/internal/config"
	"github.com/iyunix/go-chatwidget/internal/handlers"
	"github.com/iyunix/go-chatwidget/internal/ratelimit"
	"github.com/iyunix/go-chatwidget/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: configuration: %v", err)
	}
	logger := services.NewLogger("chatwidget")

	application, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize application: %v", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled() {
		rl := ratelimit.DefaultStreamConfig()
		rl.RequestsPerMinute = cfg.RateLimitPerMinute
		if cfg.RateLimitBurst > 0 {
			rl.Burst = cfg.RateLimitBurst
		}
		limiter = ratelimit.NewLimiter(rl)
		defer limiter.Close()
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Chat:           handlers.NewChatHandler(application.ChatService, application.Tokens, logger),
		Tokens:         application.Tokens,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	// --- Server Configuration ---
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// --- Start Server in Goroutine ---
	go func() {
		logger.Info("server starting", "port", cfg.ServerPort, "env", cfg.Environment, "model_api", cfg.ModelAPI)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	// Streams are drained; queued jobs get the rest of the budget.
	if err := application.Close(ctx); err != nil {
		logger.Error("releasing resources failed", "error", err)
	}
	logger.Info("server stopped")
}
