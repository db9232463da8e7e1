// File: internal/services/ai/interface.go
package ai

import (
    "context"

    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
)

// EmailIntent is the structured verdict on whether an assistant reply asks
// the visitor for an email address.
type EmailIntent struct {
    RequestsEmail bool   `json:"requests_email"`
    Subject       string `json:"subject"`
    Summary       string `json:"summary"`
}

// Turn is one transcript line handed to the utility calls.
type Turn struct {
    Role    string
    Content string
}

// EmbeddingProvider handles text embeddings
type EmbeddingProvider interface {
    CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CompletionProvider handles the small non-streaming calls.
type CompletionProvider interface {
    GetCompletion(ctx context.Context, model, prompt string) (string, error)
    DetectEmailIntent(ctx context.Context, assistantReply string, transcript []Turn) (EmailIntent, error)
    Summarize(ctx context.Context, transcript []Turn) (string, error)
}

// ChatStreamer streams a reply over the chat completions API, translated
// into Responses API events.
type ChatStreamer interface {
    Stream(ctx context.Context, req modelstream.Request, onEvent func(modelstream.Event) error) error
}

// Logger interface for AI operations
type Logger interface {
    Info(msg string, keysAndValues ...interface{})
    Error(msg string, keysAndValues ...interface{})
    Debug(msg string, keysAndValues ...interface{})
    Warn(msg string, keysAndValues ...interface{})
}
