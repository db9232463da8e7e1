package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatwidget/internal/auth"
	"github.com/iyunix/go-chatwidget/internal/protocol"
	"github.com/iyunix/go-chatwidget/internal/ratelimit"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

func newAuthRouter(t *testing.T) (*mux.Router, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret", time.Hour, nopLogger{})
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Use(NewTokenAuth(tokens, nopLogger{}))
	r.HandleFunc("/api/chats/{chatId}/stream", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.UserID))
	}).Methods(http.MethodGet, http.MethodPost)
	return r, tokens
}

func decodeErrorEvent(t *testing.T, rec *httptest.ResponseRecorder) protocol.Event {
	t.Helper()
	ev, err := protocol.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, protocol.EventError, ev.Type)
	return ev
}

func TestTokenAuth(t *testing.T) {
	router, tokens := newAuthRouter(t)
	tokenA, err := tokens.Issue("chat-a", "user-1")
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chats/chat-a/stream", nil)
		req.Header.Set("Authorization", "Bearer "+tokenA)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("query token on GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats/chat-a/stream?token="+tokenA, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("query token ignored on POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chats/chat-a/stream?token="+tokenA, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, protocol.CodeTokenInvalid, decodeErrorEvent(t, rec).Code)
	})

	t.Run("token for another chat", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chats/chat-b/stream", nil)
		req.Header.Set("Authorization", "Bearer "+tokenA)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, protocol.CodeUnauthorized, decodeErrorEvent(t, rec).Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chats/chat-a/stream", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, protocol.CodeTokenInvalid, decodeErrorEvent(t, rec).Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{RequestsPerMinute: 1, Burst: 2, IdleTTL: time.Minute, CleanupPeriod: time.Hour})
	defer limiter.Close()

	h := RateLimitMiddleware(limiter, "stream", nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := []int{}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, protocol.CodeRateLimited, decodeErrorEvent(t, last).Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestRecoverPanic(t *testing.T) {
	h := RecoverPanic(nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, protocol.CodeInternal, body["code"])
}

func TestLoggingMiddleware_KeepsFlusher(t *testing.T) {
	var flushable bool
	h := LoggingMiddleware(nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, flushable)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
