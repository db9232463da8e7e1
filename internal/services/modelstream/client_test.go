package modelstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatwidget/internal/services"
)

func sseServer(t *testing.T, status int, body string, seen *Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collectText(t *testing.T, c *Client) (string, []Event, error) {
	t.Helper()
	var text strings.Builder
	var events []Event
	err := c.Stream(context.Background(), Request{Model: "gpt-4o-mini", Input: []InputMessage{{Role: "user", Content: "hi"}}}, func(ev Event) error {
		events = append(events, ev)
		text.WriteString(Decode(ev).Text)
		return nil
	})
	return text.String(), events, err
}

func TestClient_StreamsDeltas(t *testing.T) {
	body := strings.Join([]string{
		"event: response.created",
		`data: {"type":"response.created","response":{"id":"r1"}}`,
		"",
		"event: response.output_text.delta",
		`data: {"type":"response.output_text.delta","delta":"Hello"}`,
		"",
		`data: {"type":"response.output_text.delta","delta":", world"}`,
		"",
		`data: {"type":"response.completed","response":{"id":"r1"}}`,
		"",
		`data: {"type":"response.output_text.delta","delta":"ignored after completion"}`,
		"",
	}, "\n")

	var seen Request
	srv := sseServer(t, http.StatusOK, body, &seen)
	c := NewClient("sk-test", srv.URL+"/v1", srv.Client(), &services.NoOpLogger{})

	text, events, err := collectText(t, c)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	assert.Len(t, events, 4)
	assert.True(t, seen.Stream)
	assert.Equal(t, "gpt-4o-mini", seen.Model)
}

func TestClient_SkipsMalformedEvents(t *testing.T) {
	body := "data: {not json}\n\n" +
		`data: {"type":"response.output_text.delta"}` + "\n\n" +
		`data: {"type":"response.output_text.delta","delta":"ok"}` + "\n\n" +
		": keep-alive comment\n\n"

	srv := sseServer(t, http.StatusOK, body, nil)
	c := NewClient("sk-test", srv.URL+"/v1", srv.Client(), &services.NoOpLogger{})

	text, _, err := collectText(t, c)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestClient_FailureEventMidStream(t *testing.T) {
	body := `data: {"type":"response.output_text.delta","delta":"partial"}` + "\n\n" +
		`data: {"type":"response.failed","response":{"error":{"code":"server_error","message":"upstream died"}}}` + "\n\n"

	srv := sseServer(t, http.StatusOK, body, nil)
	c := NewClient("sk-test", srv.URL+"/v1", srv.Client(), &services.NoOpLogger{})

	text, _, err := collectText(t, c)
	assert.Equal(t, "partial", text)
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "server_error", se.Code)
	assert.True(t, IsStreamError(err))
}

func TestClient_RejectedRequest(t *testing.T) {
	srv := sseServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, nil)
	c := NewClient("sk-test", srv.URL+"/v1", srv.Client(), &services.NoOpLogger{})

	_, events, err := collectText(t, c)
	assert.Empty(t, events)
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "bad key", se.Message)
}

func TestClient_CallbackAborts(t *testing.T) {
	body := `data: {"type":"response.output_text.delta","delta":"a"}` + "\n\n" +
		`data: {"type":"response.output_text.delta","delta":"b"}` + "\n\n"
	srv := sseServer(t, http.StatusOK, body, nil)
	c := NewClient("sk-test", srv.URL+"/v1", srv.Client(), &services.NoOpLogger{})

	stop := errors.New("client went away")
	calls := 0
	err := c.Stream(context.Background(), Request{Model: "m"}, func(ev Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestClient_EOFWithoutCompletion(t *testing.T) {
	body := `data: {"type":"response.output_text.delta","delta":"tail"}`
	srv := sseServer(t, http.StatusOK, body, nil)
	c := NewClient("sk-test", srv.URL+"/v1", srv.Client(), &services.NoOpLogger{})

	text, _, err := collectText(t, c)
	require.NoError(t, err)
	assert.Equal(t, "tail", text)
}
