// File: cmd/worker/main.go
//
// worker consumes email-capture jobs that the server publishes to RabbitMQ.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iyunix/go-chatwidget/internal/app"
	"github.com/iyunix/go-chatwidget/internal/config"
	"github.com/iyunix/go-chatwidget/internal/services"
	"github.com/iyunix/go-chatwidget/internal/services/background"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: configuration: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatal("FATAL: RABBIT_URL is required for the worker")
	}
	logger := services.NewLogger("chatwidget-worker")

	application, err := app.BuildCore(cfg, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize worker: %v", err)
	}
	defer func() {
		if err := application.Close(context.Background()); err != nil {
			logger.Error("releasing resources failed", "error", err)
		}
	}()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("FATAL: rabbitmq dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("FATAL: rabbitmq channel: %v", err)
	}
	defer ch.Close()

	if err := background.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("FATAL: declare queues: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker consuming", "queue", cfg.RabbitQueue, "concurrency", cfg.WorkerCount)
	if err := background.Consume(ctx, ch, cfg.RabbitQueue, cfg.WorkerCount, application.EmailCapture.Handle, logger); err != nil {
		logger.Error("consumer stopped", "error", err)
	}
}
