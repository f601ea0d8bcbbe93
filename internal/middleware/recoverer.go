package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/ashureev/ace-chat/internal/api"
	"github.com/ashureev/ace-chat/internal/wire"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Recoverer turns a panic into the same 500 envelope the proxy writes for
// internal errors, so every request gets exactly one JSON response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("Handler panicked",
				"path", r.URL.Path,
				"request_id", chiMiddleware.GetReqID(r.Context()),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if r.Header.Get("Connection") == "Upgrade" {
				return
			}
			api.JSON(w, http.StatusInternalServerError, wire.ErrorEnvelope{
				Error:   "Internal error",
				Details: fmt.Sprint(rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
