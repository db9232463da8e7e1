package modelstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	maxLineSize    = 1 << 20
)

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// InputMessage is one conversation turn sent to the model.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the subset of the Responses API create call the widget uses.
type Request struct {
	Model           string         `json:"model"`
	Instructions    string         `json:"instructions,omitempty"`
	Input           []InputMessage `json:"input"`
	Temperature     *float32       `json:"temperature,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Stream          bool           `json:"stream"`
}

// Client streams responses from an OpenAI compatible /responses endpoint.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  Logger
}

// NewClient builds a streaming client. The http.Client must not carry an
// overall Timeout; streams are bounded by the caller's context.
func NewClient(apiKey, baseURL string, httpClient *http.Client, logger Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		logger:  logger,
	}
}

// Stream posts req and invokes onEvent for every well-formed event in order.
// It returns nil on response.completed or a clean end of stream, a
// *StreamError when the upstream reports failure, and onEvent's error if the
// callback aborts.
func (c *Client) Stream(ctx context.Context, req Request, onEvent func(Event) error) error {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("model stream: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("model stream: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("model stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("Model stream rejected", "status_code", resp.StatusCode, "model", req.Model)
		return &StreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(snippet, resp.Status)}
	}

	return c.consume(ctx, resp.Body, onEvent)
}

// consume reads an SSE body. Only data lines matter since every payload
// repeats its own type.
func (c *Client) consume(ctx context.Context, body io.Reader, onEvent func(Event) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var data bytes.Buffer
	flush := func() (bool, error) {
		if data.Len() == 0 {
			return false, nil
		}
		payload := bytes.TrimSpace(data.Bytes())
		defer data.Reset()

		if bytes.Equal(payload, []byte("[DONE]")) {
			return true, nil
		}

		ev, err := ParseEvent(payload)
		if err != nil {
			c.logger.Warn("Dropping malformed model event", "error", err)
			return false, nil
		}
		if f, ok := ev.(Failed); ok {
			return true, &StreamError{Code: f.Code, Message: f.Message}
		}
		if err := onEvent(ev); err != nil {
			return true, err
		}
		_, done := ev.(Completed)
		return done, nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			done, err := flush()
			if err != nil || done {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: and comments carry nothing we need.
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("model stream: reading: %w", err)
	}

	_, err := flush()
	return err
}

func upstreamMessage(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return fallback
}

// IsStreamError reports whether err came from the upstream model.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}
