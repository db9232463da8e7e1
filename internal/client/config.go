package client

import (
	"errors"
	"net/http"
	"time"

	"github.com/iyunix/go-chatwidget/internal/services/resilient"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	CompanyID string
	UserID    string // empty lets the server assign an anonymous id
	Timezone  string

	// EmailCapture tells the server the caller can render request_email.
	EmailCapture bool

	// StreamingBodies is the capability probe for the chunked NDJSON
	// transport. When false every call uses SSE.
	StreamingBodies bool

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectResetTime   time.Duration

	// HTTPClient carries the streams; it should not set a Timeout since
	// replies are long lived.
	HTTPClient *http.Client
	Retry      resilient.RetryConfig
	Logger     Logger
}

func DefaultOptions() Options {
	return Options{
		StreamingBodies:      true,
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   time.Second,
		ReconnectResetTime:   10 * time.Minute,
		HTTPClient:           &http.Client{},
		Retry:                resilient.DefaultRetryConfig(),
		Logger:               nopLogger{},
	}
}

func (o *Options) Validate() error {
	if o.BaseURL == "" {
		return errors.New("client: base URL is required")
	}
	if o.CompanyID == "" {
		return errors.New("client: company id is required")
	}
	if o.MaxReconnectAttempts < 0 {
		return errors.New("client: max reconnect attempts cannot be negative")
	}
	if o.ReconnectBaseDelay < 0 || o.ReconnectResetTime <= 0 {
		return errors.New("client: reconnect timings must be positive")
	}
	return o.Retry.Validate()
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
