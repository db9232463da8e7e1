// File: internal/services/chat/types.go
package chat

import (
    "context"

    "github.com/iyunix/go-chatwidget/internal/protocol"
    "github.com/iyunix/go-chatwidget/internal/services/ai"
    "github.com/iyunix/go-chatwidget/internal/services/modelstream"
    "github.com/iyunix/go-chatwidget/internal/services/retrieval"
)

// Logger defines the logging interface used across chat services
type Logger interface {
    Info(msg string, keysAndValues ...interface{})
    Error(msg string, keysAndValues ...interface{})
    Debug(msg string, keysAndValues ...interface{})
    Warn(msg string, keysAndValues ...interface{})
}

// ModelStreamer produces the assistant reply as a stream of model events.
type ModelStreamer interface {
    Stream(ctx context.Context, req modelstream.Request, onEvent func(modelstream.Event) error) error
}

// Retriever finds company documents relevant to a question.
type Retriever interface {
    Search(ctx context.Context, indexName, query string) ([]retrieval.Document, error)
    FormatContext(docs []retrieval.Document) string
}

// EmailDetector decides whether a reply asks for the visitor's email.
type EmailDetector interface {
    DetectEmailIntent(ctx context.Context, assistantReply string, transcript []ai.Turn) (ai.EmailIntent, error)
}

// Summarizer condenses a transcript for the follow-up email.
type Summarizer interface {
    Summarize(ctx context.Context, transcript []ai.Turn) (string, error)
}

// Notifier sends a templated notification; false means nothing was sent.
type Notifier interface {
    Send(ctx context.Context, templateID, recipient string, data map[string]string) (bool, error)
}

// Emitter writes one event to the client in whatever encoding the transport
// uses. An error means the client is gone.
type Emitter interface {
    Emit(ev protocol.Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev protocol.Event) error

func (f EmitterFunc) Emit(ev protocol.Event) error { return f(ev) }

// TurnRequest is one user message arriving on a stream.
type TurnRequest struct {
    ChatID       string
    UserID       string // from the verified access token
    Content      string
    Timezone     string
    EmailCapture bool // the client can render the email-capture event
}
