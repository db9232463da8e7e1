package notify

import (
    "context"
    "net/http"
)

// Provider delivers one templated email.
type Provider interface {
    SendTemplate(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// Fetcher is the retrying HTTP client providers send through.
type Fetcher interface {
    Request(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error)
}

type Logger interface {
    Info(msg string, keysAndValues ...interface{})
    Error(msg string, keysAndValues ...interface{})
    Debug(msg string, keysAndValues ...interface{})
    Warn(msg string, keysAndValues ...interface{})
}
