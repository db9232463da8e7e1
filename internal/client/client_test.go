package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatwidget/internal/dtos"
	"github.com/iyunix/go-chatwidget/internal/protocol"
)

// backend imitates the widget API. Stream behaviour is scripted per call.
type backend struct {
	mu          sync.Mutex
	chats       int
	valid       map[string]string // token -> chat id
	streamCalls []string          // "<transport>:<content>"
	script      func(call int, w http.ResponseWriter, r *http.Request, transport string)
	ndjsonDown  bool
}

func newBackend() *backend {
	return &backend{valid: map[string]string{}}
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chats", func(w http.ResponseWriter, r *http.Request) {
		var req dtos.CreateChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.CompanyID == "ghost" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(protocol.Failure("company not found", protocol.CodeCompanyNotFound))
			return
		}
		b.mu.Lock()
		b.chats++
		id := fmt.Sprintf("chat-%d", b.chats)
		token := "tok-" + id
		b.valid[token] = id
		b.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(dtos.CreateChatResponse{
			Chat:        dtos.ChatDTO{ID: id, UserID: "u1", CompanyID: req.CompanyID},
			AccessToken: token,
			Messages:    []dtos.MessageDTO{},
		})
	})
	stream := func(transport string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if transport == "ndjson" && b.ndjsonDown {
				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					conn.Close()
				}
				return
			}
			var req dtos.StreamRequest
			_ = json.NewDecoder(r.Body).Decode(&req)

			b.mu.Lock()
			b.streamCalls = append(b.streamCalls, transport+":"+req.Content)
			call := len(b.streamCalls)
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			chatID, ok := b.valid[token]
			b.mu.Unlock()

			if !ok || !strings.Contains(r.URL.Path, "/"+chatID+"/") {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(protocol.Failure("invalid or expired access token", protocol.CodeTokenInvalid))
				return
			}
			b.script(call, w, r, transport)
		}
	}
	mux.HandleFunc("/api/chats/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/stream"):
			stream("ndjson")(w, r)
		case strings.HasSuffix(r.URL.Path, "/sse"):
			stream("sse")(w, r)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func (b *backend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.streamCalls...)
}

func (b *backend) chatCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chats
}

// writeEvents streams events in the framing of transport.
func writeEvents(w http.ResponseWriter, transport string, events ...interface{}) {
	if transport == "sse" {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	w.WriteHeader(http.StatusOK)
	for _, ev := range events {
		var line string
		switch v := ev.(type) {
		case string:
			line = v
		default:
			data, _ := json.Marshal(v)
			line = string(data)
		}
		if transport == "sse" {
			fmt.Fprintf(w, "data: %s\n\n", line)
		} else {
			fmt.Fprintf(w, "%s\n", line)
		}
		w.(http.Flusher).Flush()
	}
}

func replyHiThere(call int, w http.ResponseWriter, r *http.Request, transport string) {
	writeEvents(w, transport, protocol.Start(), protocol.Chunk("Hi"), protocol.Chunk(" there"), protocol.Done("Hi there"))
}

type recorded struct {
	mu       sync.Mutex
	chunks   []string
	specials []protocol.Event
	done     []string
	errors   []string
	states   []State
}

func (r *recorded) handlers() Handlers {
	return Handlers{
		OnChunk:        func(t string) { r.mu.Lock(); r.chunks = append(r.chunks, t); r.mu.Unlock() },
		OnSpecialEvent: func(ev protocol.Event) { r.mu.Lock(); r.specials = append(r.specials, ev); r.mu.Unlock() },
		OnDone:         func(t string) { r.mu.Lock(); r.done = append(r.done, t); r.mu.Unlock() },
		OnError:        func(code, msg string) { r.mu.Lock(); r.errors = append(r.errors, code); r.mu.Unlock() },
		OnStateChange:  func(from, to State) { r.mu.Lock(); r.states = append(r.states, to); r.mu.Unlock() },
	}
}

func newTestClient(t *testing.T, b *backend, mutate func(*Options)) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	opts := DefaultOptions()
	opts.BaseURL = srv.URL
	opts.CompanyID = "acme"
	opts.HTTPClient = srv.Client()
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts, nil)
	require.NoError(t, err)

	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return c, &delays
}

func TestSend_HappyPath(t *testing.T) {
	b := newBackend()
	b.script = replyHiThere
	c, _ := newTestClient(t, b, nil)
	rec := &recorded{}

	require.NoError(t, c.Send(context.Background(), "Hello", rec.handlers()))

	assert.Equal(t, []string{"Hi", " there"}, rec.chunks)
	assert.Equal(t, []string{"Hi there"}, rec.done)
	assert.Empty(t, rec.errors)
	assert.Equal(t, []State{StateResolvingSession, StateSending, StateReceiving, StateComplete}, rec.states)
	assert.Equal(t, []string{"ndjson:Hello"}, b.calls())

	creds, ok := c.Credentials()
	require.True(t, ok)
	assert.Equal(t, "chat-1", creds.ChatID)

	// The stored session is reused.
	require.NoError(t, c.Send(context.Background(), "Again", Handlers{}))
	assert.Equal(t, 1, b.chatCount())
}

func TestSend_ExpiredTokenRecreatesChatOnce(t *testing.T) {
	b := newBackend()
	b.script = replyHiThere
	c, delays := newTestClient(t, b, nil)
	require.NoError(t, c.creds.Save(Credentials{ChatID: "chat-old", Token: "expired"}))
	rec := &recorded{}

	require.NoError(t, c.Send(context.Background(), "Hello", rec.handlers()))

	assert.Equal(t, []string{"ndjson:Hello", "ndjson:Hello"}, b.calls())
	assert.Equal(t, 1, b.chatCount())
	assert.Equal(t, []string{"Hi there"}, rec.done)
	assert.Empty(t, rec.errors)
	assert.Equal(t, []time.Duration{time.Second}, *delays)

	creds, ok := c.Credentials()
	require.True(t, ok)
	assert.Equal(t, "chat-1", creds.ChatID)
}

func TestSend_ReconnectLimit(t *testing.T) {
	b := newBackend()
	b.script = func(call int, w http.ResponseWriter, r *http.Request, transport string) {
		writeEvents(w, transport, protocol.Failure("token expired", protocol.CodeTokenInvalid))
	}
	c, delays := newTestClient(t, b, nil)
	rec := &recorded{}

	err := c.Send(context.Background(), "Hello", rec.handlers())
	require.ErrorIs(t, err, ErrReconnectLimit)

	assert.Len(t, b.calls(), 4)
	assert.Equal(t, []string{protocol.CodeReconnectLimit}, rec.errors)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)
	assert.Equal(t, StateError, c.State())
	assert.Empty(t, rec.done)
}

func TestSend_NotFoundSignalsAndRetries(t *testing.T) {
	b := newBackend()
	b.script = func(call int, w http.ResponseWriter, r *http.Request, transport string) {
		if call == 1 {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(protocol.Failure("chat not found", protocol.CodeChatNotFound))
			return
		}
		replyHiThere(call, w, r, transport)
	}
	c, _ := newTestClient(t, b, nil)
	rec := &recorded{}

	require.NoError(t, c.Send(context.Background(), "Hello", rec.handlers()))
	assert.Equal(t, []string{protocol.CodeChatNotFound}, rec.errors)
	assert.Equal(t, []string{"Hi there"}, rec.done)
	assert.Equal(t, 2, b.chatCount())
}

func TestSend_OtherErrorsSurfaceWithoutRetry(t *testing.T) {
	b := newBackend()
	b.script = func(call int, w http.ResponseWriter, r *http.Request, transport string) {
		writeEvents(w, transport, protocol.Start(), protocol.Chunk("partial"), protocol.Failure("model down", protocol.CodeModel))
	}
	c, delays := newTestClient(t, b, nil)
	rec := &recorded{}

	err := c.Send(context.Background(), "Hello", rec.handlers())
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.CodeModel, serr.Code)
	assert.Equal(t, []string{protocol.CodeModel}, rec.errors)
	assert.Len(t, b.calls(), 1)
	assert.Empty(t, *delays)
}

func TestSend_SkipsBadLinesAndForwardsSpecialEvents(t *testing.T) {
	b := newBackend()
	b.script = func(call int, w http.ResponseWriter, r *http.Request, transport string) {
		special, _ := protocol.RequestEmail("01J0000000000000000000000", protocol.EmailRequestDetails{Subject: "Quote"})
		writeEvents(w, transport,
			protocol.Start(),
			`{"type":"chunk","content":`,
			protocol.Chunk("ok"),
			`{"no":"type"}`,
			special,
			protocol.Done("ok"),
		)
	}
	c, _ := newTestClient(t, b, nil)
	rec := &recorded{}

	require.NoError(t, c.Send(context.Background(), "Hello", rec.handlers()))
	assert.Equal(t, []string{"ok"}, rec.chunks)
	require.Len(t, rec.specials, 1)
	assert.Equal(t, protocol.EventRequestEmail, rec.specials[0].Type)
	assert.Equal(t, []string{"ok"}, rec.done)
}

func TestSend_FallsBackToSSEWhenChunkedFails(t *testing.T) {
	b := newBackend()
	b.ndjsonDown = true
	b.script = replyHiThere
	c, _ := newTestClient(t, b, nil)
	rec := &recorded{}

	require.NoError(t, c.Send(context.Background(), "Hello", rec.handlers()))
	assert.Equal(t, []string{"sse:Hello"}, b.calls())
	assert.Equal(t, []string{"Hi there"}, rec.done)
}

func TestSend_SSEOnlyWithoutStreamingBodies(t *testing.T) {
	b := newBackend()
	b.script = replyHiThere
	c, _ := newTestClient(t, b, func(o *Options) { o.StreamingBodies = false })

	require.NoError(t, c.Send(context.Background(), "Hello", Handlers{}))
	assert.Equal(t, []string{"sse:Hello"}, b.calls())
}

func TestSend_CancelIsSilent(t *testing.T) {
	b := newBackend()
	b.script = func(call int, w http.ResponseWriter, r *http.Request, transport string) {
		writeEvents(w, transport, protocol.Start(), protocol.Chunk("Hi"))
		<-r.Context().Done()
	}
	c, _ := newTestClient(t, b, nil)

	var (
		mu     sync.Mutex
		called []string
	)
	h := Handlers{
		OnChunk: func(string) { c.Cancel() },
		OnDone:  func(string) { mu.Lock(); called = append(called, "done"); mu.Unlock() },
		OnError: func(code, _ string) { mu.Lock(); called = append(called, code); mu.Unlock() },
	}

	require.NoError(t, c.Send(context.Background(), "Hello", h))
	assert.Equal(t, StateCancelled, c.State())
	assert.Empty(t, called)
}

func TestSend_CreateChatFailureSurfaces(t *testing.T) {
	b := newBackend()
	c, _ := newTestClient(t, b, func(o *Options) { o.CompanyID = "ghost" })
	rec := &recorded{}

	err := c.Send(context.Background(), "Hello", rec.handlers())
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{protocol.CodeCompanyNotFound}, rec.errors)
	assert.Empty(t, b.calls())
}

func TestReconnectPolicy_ResetsAfterInactivity(t *testing.T) {
	p := newReconnectPolicy(2, time.Second, 10*time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d, ok := p.next(now)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
	d, ok = p.next(now.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
	_, ok = p.next(now.Add(2 * time.Second))
	assert.False(t, ok)

	d, ok = p.next(now.Add(11 * time.Minute))
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestMachine_RejectsIllegalTransitions(t *testing.T) {
	m := newMachine(nil)
	assert.Error(t, m.transition(StateReceiving))
	require.NoError(t, m.transition(StateResolvingSession))
	require.NoError(t, m.transition(StateSending))
	assert.Error(t, m.transition(StateRetrying))
}

func TestFileCredentialStore(t *testing.T) {
	store := NewFileCredentialStore(t.TempDir() + "/session/creds.json")

	_, ok := store.Load()
	assert.False(t, ok)

	require.NoError(t, store.Save(Credentials{ChatID: "c1", Token: "t1"}))
	creds, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "c1", creds.ChatID)

	require.NoError(t, store.Clear())
	_, ok = store.Load()
	assert.False(t, ok)
	assert.NoError(t, store.Clear())
}
