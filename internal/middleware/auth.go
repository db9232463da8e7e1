package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatwidget/internal/auth"
	"github.com/iyunix/go-chatwidget/internal/protocol"
)

// TokenVerifier checks an access token.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// NewTokenAuth guards chat routes. The token comes from the Authorization
// header or, for GET requests only, the `token` query parameter. A token is
// only valid for the chat it was issued for.
func NewTokenAuth(tokens TokenVerifier, logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := auth.ExtractBearer(r.Header.Get("Authorization"))
			if !ok && r.Method == http.MethodGet {
				raw = r.URL.Query().Get("token")
				ok = raw != ""
			}
			if !ok {
				logger.Debug("request without access token", "path", r.URL.Path)
				WriteErrorEvent(w, http.StatusUnauthorized, "missing access token", protocol.CodeTokenInvalid)
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				WriteErrorEvent(w, http.StatusUnauthorized, "invalid or expired access token", protocol.CodeTokenInvalid)
				return
			}

			if chatID := mux.Vars(r)["chatId"]; chatID != "" && chatID != claims.ChatID {
				logger.Warn("token used for another chat", "token_chat_id", claims.ChatID, "chat_id", chatID)
				WriteErrorEvent(w, http.StatusUnauthorized, "token is not valid for this chat", protocol.CodeUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by NewTokenAuth.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(auth.Claims)
	return claims, ok
}
