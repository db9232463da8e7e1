package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iyunix/go-chatwidget/internal/protocol"
)

// WriteErrorEvent answers with a single `error` event, the same object a
// stream would carry, so clients parse both paths identically.
func WriteErrorEvent(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.Failure(message, code))
}
