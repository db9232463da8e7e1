package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/iyunix/go-chatwidget/internal/protocol"
)

// streamWriter writes protocol events to a response and flushes after each
// one. Headers are committed by the first event, so a handler can still
// answer with a plain status code until then.
type streamWriter struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	rc          *http.ResponseController
	contentType string
	frame       func(buf *bytes.Buffer, payload []byte)
	preamble    []protocol.Event
	started     bool
}

// newNDJSONWriter frames each event as one JSON line.
func newNDJSONWriter(w http.ResponseWriter) *streamWriter {
	return &streamWriter{
		w:           w,
		rc:          http.NewResponseController(w),
		contentType: "application/x-ndjson",
		frame: func(buf *bytes.Buffer, payload []byte) {
			buf.Write(payload)
			buf.WriteByte('\n')
		},
	}
}

// newSSEWriter frames events as `data:` records and opens the stream with
// a `connected` event.
func newSSEWriter(w http.ResponseWriter) *streamWriter {
	return &streamWriter{
		w:           w,
		rc:          http.NewResponseController(w),
		contentType: "text/event-stream",
		frame: func(buf *bytes.Buffer, payload []byte) {
			buf.WriteString("data: ")
			buf.Write(payload)
			buf.WriteString("\n\n")
		},
		preamble: []protocol.Event{protocol.Connected()},
	}
}

// Emit implements chat.Emitter.
func (s *streamWriter) Emit(ev protocol.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", s.contentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true

		for _, pre := range s.preamble {
			if err := s.encode(&buf, pre); err != nil {
				return err
			}
		}
	}
	if err := s.encode(&buf, ev); err != nil {
		return err
	}

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Started reports whether the response headers have been sent.
func (s *streamWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *streamWriter) encode(buf *bytes.Buffer, ev protocol.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.frame(buf, payload)
	return nil
}
