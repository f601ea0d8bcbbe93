// Package api provides shared HTTP response helpers and small page routes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/ace-chat/internal/wire"
	"github.com/go-chi/chi/v5"
)

// ChatPagePath is where the chat page is served.
const ChatPagePath = "/chat"

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err, "status", status)
	}
}

// Error writes a JSON error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, wire.ErrorEnvelope{Error: message})
}

// RegisterRoutes registers page-level routes.
func RegisterRoutes(r chi.Router) {
	r.Get("/", RedirectToChat)
}

// RedirectToChat sends the bare root to the chat page, keeping the query string.
func RedirectToChat(w http.ResponseWriter, r *http.Request) {
	target := ChatPagePath
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}
