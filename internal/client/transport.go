package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/iyunix/go-chatwidget/internal/dtos"
	"github.com/iyunix/go-chatwidget/internal/protocol"
)

// errStop ends a stream early once a terminal event has been handled.
var errStop = errors.New("client: stop reading")

// Transport carries one turn to the server and feeds every raw event
// object it receives to onEvent, in order.
type Transport interface {
	Name() string
	Stream(ctx context.Context, creds Credentials, req dtos.StreamRequest, onEvent func(raw []byte) error) error
}

// TransportError reports a failed exchange. Consumed tells whether any of
// the response had been read when it failed.
type TransportError struct {
	Transport  string
	StatusCode int
	Consumed   bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport: unexpected status %d", e.Transport, e.StatusCode)
	}
	return fmt.Sprintf("%s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// maxErrorBody bounds how much of a non-streaming error response is read.
const maxErrorBody = 64 * 1024

type httpTransport struct {
	name    string
	client  *http.Client
	baseURL string
	path    string
	accept  string
	read    func(r io.Reader, onEvent func([]byte) error) error
}

// NewNDJSONTransport posts to /api/chats/{chatId}/stream and reads one JSON
// object per line.
func NewNDJSONTransport(client *http.Client, baseURL string) Transport {
	return &httpTransport{
		name:    "ndjson",
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "stream",
		accept:  "application/x-ndjson",
		read:    readNDJSON,
	}
}

// NewSSETransport posts to /api/chats/{chatId}/sse and reads `data:`
// records.
func NewSSETransport(client *http.Client, baseURL string) Transport {
	return &httpTransport{
		name:    "sse",
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "sse",
		accept:  "text/event-stream",
		read:    readSSE,
	}
}

func (t *httpTransport) Name() string { return t.name }

func (t *httpTransport) Stream(ctx context.Context, creds Credentials, sreq dtos.StreamRequest, onEvent func([]byte) error) error {
	body, err := json.Marshal(sreq)
	if err != nil {
		return &TransportError{Transport: t.name, Err: err}
	}
	endpoint := fmt.Sprintf("%s/api/chats/%s/%s", t.baseURL, url.PathEscape(creds.ChatID), t.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Transport: t.name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", t.accept)
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Transport: t.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Rejections carry a single error event as their body.
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if ev, err := protocol.Parse(bytes.TrimSpace(data)); err == nil && ev.Type == protocol.EventError {
			if err := onEvent(bytes.TrimSpace(data)); err != nil && !errors.Is(err, errStop) {
				return err
			}
			return nil
		}
		return &TransportError{Transport: t.name, StatusCode: resp.StatusCode, Consumed: true}
	}

	consumed := &countingReader{r: resp.Body}
	if err := t.read(consumed, onEvent); err != nil {
		if errors.Is(err, errStop) {
			return nil
		}
		return &TransportError{Transport: t.name, Consumed: consumed.n > 0, Err: err}
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func readNDJSON(r io.Reader, onEvent func([]byte) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if cbErr := onEvent(line); cbErr != nil {
				return cbErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readSSE assembles events from `data:` lines; a blank line ends an event.
// Comments and other fields are ignored.
func readSSE(r io.Reader, onEvent func([]byte) error) error {
	br := bufio.NewReader(r)
	var data [][]byte
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := bytes.Join(data, []byte("\n"))
		data = data[:0]
		return onEvent(payload)
	}

	for {
		line, err := br.ReadBytes('\n')
		trimmed := bytes.TrimRight(line, "\r\n")
		switch {
		case len(trimmed) == 0 && len(line) > 0:
			if cbErr := flush(); cbErr != nil {
				return cbErr
			}
		case bytes.HasPrefix(trimmed, []byte("data:")):
			value := bytes.TrimPrefix(trimmed, []byte("data:"))
			value = bytes.TrimPrefix(value, []byte(" "))
			data = append(data, append([]byte(nil), value...))
		}
		if err == io.EOF {
			return flush()
		}
		if err != nil {
			return err
		}
	}
}
