// File: internal/protocol/event.go
package protocol

import (
	"encoding/json"
	"errors"
)

// EventType is the `type` discriminant of every object on the wire.
type EventType string

const (
	EventStart     EventType = "start"
	EventConnected EventType = "connected"
	EventChunk     EventType = "chunk"
	EventDone      EventType = "done"
	EventError     EventType = "error"

	// EventRequestEmail is the only special event the server emits today.
	EventRequestEmail EventType = "request_email"
)

// Error codes carried in the `code` field of error events.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeChatNotFound    = "CHAT_NOT_FOUND"
	CodeCompanyNotFound = "COMPANY_NOT_FOUND"
	CodeStore           = "STORE_ERROR"
	CodeModel           = "MODEL_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRateLimited     = "RATE_LIMITED"

	// Client-side only.
	CodeReconnectLimit = "RECONNECT_LIMIT"
	CodeTransport      = "TRANSPORT_ERROR"
)

// EmailRequestDetails is the payload of a request_email event.
type EmailRequestDetails struct {
	Subject             string `json:"subject"`
	ConversationSummary string `json:"conversationSummary"`
}

// Event is one JSON object of the stream vocabulary. Fields not used by a
// given type are omitted on the wire.
type Event struct {
	Type        EventType       `json:"type"`
	Content     string          `json:"content,omitempty"`
	FullContent *string         `json:"fullContent,omitempty"`
	Error       string          `json:"error,omitempty"`
	Code        string          `json:"code,omitempty"`
	ID          string          `json:"id,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
}

func Start() Event     { return Event{Type: EventStart} }
func Connected() Event { return Event{Type: EventConnected} }

func Chunk(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

func Done(fullContent string) Event {
	return Event{Type: EventDone, FullContent: &fullContent}
}

func Failure(message, code string) Event {
	return Event{Type: EventError, Error: message, Code: code}
}

// RequestEmail builds the email-capture special event.
func RequestEmail(id string, details EmailRequestDetails) (Event, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventRequestEmail, ID: id, Details: raw}, nil
}

// ErrMissingType is returned by Parse for objects without a discriminant.
var ErrMissingType = errors.New("protocol: event has no type")

// Parse decodes a single wire object.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, ErrMissingType
	}
	return ev, nil
}

// IsSpecial reports whether the event is a side-channel event: any type
// outside the core vocabulary that does not carry an error.
func (e Event) IsSpecial() bool {
	switch e.Type {
	case EventStart, EventConnected, EventChunk, EventDone, EventError:
		return false
	}
	return e.Error == ""
}

// Full returns the fullContent of a done event.
func (e Event) Full() string {
	if e.FullContent == nil {
		return ""
	}
	return *e.FullContent
}
