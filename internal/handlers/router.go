package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iyunix/go-chatwidget/internal/middleware"
	"github.com/iyunix/go-chatwidget/internal/protocol"
	"github.com/iyunix/go-chatwidget/internal/ratelimit"
)

// RouterDeps are the pieces NewRouter wires together.
type RouterDeps struct {
	Chat           *ChatHandler
	Tokens         middleware.TokenVerifier
	Limiter        *ratelimit.Limiter // nil disables rate limiting
	AllowedOrigins []string
	Logger         Logger
}

// NewRouter builds the HTTP surface of the widget backend. CORS wraps the
// router so preflight requests are answered for every path.
func NewRouter(deps RouterDeps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RecoverPanic(deps.Logger))
	r.Use(middleware.LoggingMiddleware(deps.Logger))

	// --- Public Routes ---
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chats", deps.Chat.CreateChat).Methods(http.MethodPost)

	// --- Token-scoped Routes ---
	scoped := api.PathPrefix("/chats/{chatId}").Subrouter()
	scoped.Use(middleware.NewTokenAuth(deps.Tokens, deps.Logger))
	scoped.HandleFunc("/messages", deps.Chat.GetChatMessages).Methods(http.MethodGet)

	streams := scoped.NewRoute().Subrouter()
	if deps.Limiter != nil {
		streams.Use(middleware.RateLimitMiddleware(deps.Limiter, "stream", deps.Logger))
	}
	streams.HandleFunc("/stream", deps.Chat.StreamNDJSON).Methods(http.MethodPost)
	streams.HandleFunc("/sse", deps.Chat.StreamSSE).Methods(http.MethodGet, http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", protocol.CodeValidation)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", protocol.CodeValidation)
	})
	return middleware.CORS(deps.AllowedOrigins)(r)
}
