// File: internal/handlers/chat_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatwidget/internal/domain"
	"github.com/iyunix/go-chatwidget/internal/dtos"
	"github.com/iyunix/go-chatwidget/internal/middleware"
	"github.com/iyunix/go-chatwidget/internal/observability"
	"github.com/iyunix/go-chatwidget/internal/protocol"
	"github.com/iyunix/go-chatwidget/internal/services/chat"
)

// maxBodyBytes leaves room for JSON escaping around the largest message.
const maxBodyBytes = 4 * dtos.MaxContentBytes

// ChatService is the part of chat.Service the handlers use.
type ChatService interface {
	CreateChat(ctx context.Context, companyID, userID string) (*domain.Chat, []domain.Message, error)
	ListMessages(ctx context.Context, chatID, userID string) ([]domain.Message, error)
	StreamTurn(ctx context.Context, req chat.TurnRequest, emitter chat.Emitter) (*chat.Turn, error)
}

type TokenIssuer interface {
	Issue(chatID, userID string) (string, error)
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type ChatHandler struct {
	chats  ChatService
	tokens TokenIssuer
	logger Logger
}

func NewChatHandler(chats ChatService, tokens TokenIssuer, logger Logger) *ChatHandler {
	return &ChatHandler{
		chats:  chats,
		tokens: tokens,
		logger: logger,
	}
}

// CreateChat handles POST /api/chats.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req dtos.CreateChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", protocol.CodeValidation)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), protocol.CodeValidation)
		return
	}

	c, messages, err := h.chats.CreateChat(r.Context(), req.CompanyID, req.UserID)
	if err != nil {
		h.logger.Warn("chat creation failed", "company_id", req.CompanyID, "error", err)
		writeServiceError(w, err)
		return
	}

	token, err := h.tokens.Issue(c.ID, c.UserID)
	if err != nil {
		h.logger.Error("token issue failed", "chat_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue access token", protocol.CodeInternal)
		return
	}

	writeJSON(w, http.StatusCreated, dtos.CreateChatResponse{
		Chat:        dtos.ToChatDTO(c),
		AccessToken: token,
		Messages:    dtos.ToMessageDTOs(messages),
	})
}

// GetChatMessages handles GET /api/chats/{chatId}/messages.
func (h *ChatHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", protocol.CodeUnauthorized)
		return
	}

	messages, err := h.chats.ListMessages(r.Context(), mux.Vars(r)["chatId"], claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": dtos.ToMessageDTOs(messages)})
}

// StreamNDJSON handles POST /api/chats/{chatId}/stream.
func (h *ChatHandler) StreamNDJSON(w http.ResponseWriter, r *http.Request) {
	var req dtos.StreamRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", protocol.CodeValidation)
		return
	}
	h.stream(w, r, req, newNDJSONWriter(w), "ndjson")
}

// StreamSSE handles GET and POST /api/chats/{chatId}/sse. GET reads the
// message from the query string.
func (h *ChatHandler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	var req dtos.StreamRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Content = q.Get("content")
		req.Timezone = q.Get("timezone")
		req.EmailCapture, _ = strconv.ParseBool(q.Get("emailCapture"))
	} else if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", protocol.CodeValidation)
		return
	}
	h.stream(w, r, req, newSSEWriter(w), "sse")
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, req dtos.StreamRequest, sw *streamWriter, transport string) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", protocol.CodeUnauthorized)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), protocol.CodeValidation)
		return
	}

	finish := observability.StreamOpened(transport)
	turn, err := h.chats.StreamTurn(r.Context(), chat.TurnRequest{
		ChatID:       mux.Vars(r)["chatId"],
		UserID:       claims.UserID,
		Content:      req.Content,
		Timezone:     req.Timezone,
		EmailCapture: req.EmailCapture,
	}, sw)

	switch {
	case err == nil:
		finish("ok")
	case errors.Is(err, chat.ErrClientGone):
		finish("client_gone")
	default:
		finish("error")
		if !sw.Started() {
			writeServiceError(w, err)
		}
		h.logger.Warn("turn failed", "chat_id", claims.ChatID, "transport", transport, "state", string(turn.State()), "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends an `error` event as the whole response body.
func writeError(w http.ResponseWriter, status int, message, code string) {
	middleware.WriteErrorEvent(w, status, message, code)
}

func writeServiceError(w http.ResponseWriter, err error) {
	code := chat.CodeOf(err)
	writeError(w, statusForCode(code), chat.PublicMessage(err), code)
}

func statusForCode(code string) int {
	switch code {
	case protocol.CodeValidation:
		return http.StatusBadRequest
	case protocol.CodeUnauthorized, protocol.CodeTokenInvalid, protocol.CodeTokenExpired:
		return http.StatusUnauthorized
	case protocol.CodeChatNotFound, protocol.CodeCompanyNotFound:
		return http.StatusNotFound
	case protocol.CodeStore, protocol.CodeModel:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
