// Package modelstream decodes the server-sent event stream of the OpenAI
// Responses API into a closed set of Go types.
package modelstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Discriminants of the Responses API stream.
const (
	TypeCreated          = "response.created"
	TypeInProgress       = "response.in_progress"
	TypeOutputTextDelta  = "response.output_text.delta"
	TypeOutputTextDone   = "response.output_text.done"
	TypeOutputItemAdded  = "response.output_item.added"
	TypeContentPartAdded = "response.content_part.added"
	TypeContentPartDone  = "response.content_part.done"
	TypeOutputItemDone   = "response.output_item.done"
	TypeCompleted        = "response.completed"
	TypeFailed           = "response.failed"
	TypeError            = "error"
)

// ErrMalformed marks an event whose payload does not match its discriminant.
var ErrMalformed = errors.New("modelstream: malformed event")

// Event is one decoded stream event. The set of implementations is closed.
type Event interface {
	Type() string
	sealed()
}

type Created struct {
	ResponseID string
}

type InProgress struct {
	ResponseID string
}

type OutputTextDelta struct {
	ItemID       string
	OutputIndex  int
	ContentIndex int
	Delta        string
}

type OutputTextDone struct {
	ItemID string
	Text   string
}

type OutputItemAdded struct {
	ItemID      string
	ItemType    string
	OutputIndex int
}

type ContentPartAdded struct {
	ItemID       string
	ContentIndex int
}

type ContentPartDone struct {
	ItemID       string
	ContentIndex int
}

type OutputItemDone struct {
	ItemID      string
	OutputIndex int
}

type Completed struct {
	ResponseID string
}

// Failed covers both response.failed and the bare error event.
type Failed struct {
	Kind    string
	Code    string
	Message string
}

// Unknown carries any discriminant this package does not model.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (Created) Type() string          { return TypeCreated }
func (InProgress) Type() string       { return TypeInProgress }
func (OutputTextDelta) Type() string  { return TypeOutputTextDelta }
func (OutputTextDone) Type() string   { return TypeOutputTextDone }
func (OutputItemAdded) Type() string  { return TypeOutputItemAdded }
func (ContentPartAdded) Type() string { return TypeContentPartAdded }
func (ContentPartDone) Type() string  { return TypeContentPartDone }
func (OutputItemDone) Type() string   { return TypeOutputItemDone }
func (Completed) Type() string        { return TypeCompleted }
func (f Failed) Type() string         { return f.Kind }
func (u Unknown) Type() string        { return u.Kind }

func (Created) sealed()          {}
func (InProgress) sealed()       {}
func (OutputTextDelta) sealed()  {}
func (OutputTextDone) sealed()   {}
func (OutputItemAdded) sealed()  {}
func (ContentPartAdded) sealed() {}
func (ContentPartDone) sealed()  {}
func (OutputItemDone) sealed()   {}
func (Completed) sealed()        {}
func (Failed) sealed()           {}
func (Unknown) sealed()          {}

// wireEvent is the union of every field the modelled events use.
type wireEvent struct {
	Type         string        `json:"type"`
	ItemID       *string       `json:"item_id"`
	OutputIndex  *int          `json:"output_index"`
	ContentIndex *int          `json:"content_index"`
	Delta        *string       `json:"delta"`
	Text         *string       `json:"text"`
	Code         *string       `json:"code"`
	Message      *string       `json:"message"`
	Item         *wireItem     `json:"item"`
	Response     *wireResponse `json:"response"`
}

type wireItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type wireResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseEvent decodes one `data:` payload. Invalid JSON and payloads that do
// not fit their discriminant yield an Unknown event together with an error
// wrapping ErrMalformed; callers are expected to drop those.
func ParseEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Unknown{Raw: append(json.RawMessage(nil), raw...)}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return Unknown{Raw: append(json.RawMessage(nil), raw...)}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	malformed := func(field string) (Event, error) {
		return Unknown{Kind: w.Type, Raw: append(json.RawMessage(nil), raw...)},
			fmt.Errorf("%w: %s without %s", ErrMalformed, w.Type, field)
	}

	switch w.Type {
	case TypeCreated, TypeInProgress, TypeCompleted:
		if w.Response == nil {
			return malformed("response")
		}
		switch w.Type {
		case TypeCreated:
			return Created{ResponseID: w.Response.ID}, nil
		case TypeInProgress:
			return InProgress{ResponseID: w.Response.ID}, nil
		default:
			return Completed{ResponseID: w.Response.ID}, nil
		}

	case TypeOutputTextDelta:
		if w.Delta == nil {
			return malformed("delta")
		}
		return OutputTextDelta{
			ItemID:       deref(w.ItemID),
			OutputIndex:  derefInt(w.OutputIndex),
			ContentIndex: derefInt(w.ContentIndex),
			Delta:        *w.Delta,
		}, nil

	case TypeOutputTextDone:
		if w.Text == nil {
			return malformed("text")
		}
		return OutputTextDone{ItemID: deref(w.ItemID), Text: *w.Text}, nil

	case TypeOutputItemAdded:
		if w.Item == nil {
			return malformed("item")
		}
		return OutputItemAdded{ItemID: w.Item.ID, ItemType: w.Item.Type, OutputIndex: derefInt(w.OutputIndex)}, nil

	case TypeOutputItemDone:
		if w.Item == nil {
			return malformed("item")
		}
		return OutputItemDone{ItemID: w.Item.ID, OutputIndex: derefInt(w.OutputIndex)}, nil

	case TypeContentPartAdded:
		return ContentPartAdded{ItemID: deref(w.ItemID), ContentIndex: derefInt(w.ContentIndex)}, nil

	case TypeContentPartDone:
		return ContentPartDone{ItemID: deref(w.ItemID), ContentIndex: derefInt(w.ContentIndex)}, nil

	case TypeFailed:
		f := Failed{Kind: TypeFailed, Message: "response failed"}
		if w.Response != nil && w.Response.Error != nil {
			f.Code = w.Response.Error.Code
			f.Message = w.Response.Error.Message
		}
		return f, nil

	case TypeError:
		if w.Message == nil {
			return malformed("message")
		}
		return Failed{Kind: TypeError, Code: deref(w.Code), Message: *w.Message}, nil
	}

	return Unknown{Kind: w.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
