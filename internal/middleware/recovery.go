// In: internal/middleware/recovery.go

package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/iyunix/go-chatwidget/internal/protocol"
)

func RecoverPanic(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic while serving request", "path", r.URL.Path, "panic", err, "stack", string(debug.Stack()))

					w.Header().Set("Connection", "close")
					WriteErrorEvent(w, http.StatusInternalServerError, "Something went wrong on our end.", protocol.CodeInternal)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
