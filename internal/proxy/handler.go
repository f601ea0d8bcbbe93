package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/ace-chat/internal/api"
	"github.com/ashureev/ace-chat/internal/wire"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler exposes the proxy service over HTTP.
type Handler struct {
	svc         *Service
	maxBodySize int64
}

// NewHandler creates a new proxy handler. A non-positive maxBodySize uses the default.
func NewHandler(svc *Service, maxBodySize int64) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxRequestBodySize
	}
	return &Handler{svc: svc, maxBodySize: maxBodySize}
}

// RegisterRoutes registers the proxy endpoints and their /api aliases.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat-proxy", h.HandleChat)
	r.Post("/feedback-proxy", h.HandleFeedback)
	r.Post("/api/chat", h.HandleChat)
	r.Post("/api/feedback", h.HandleFeedback)
}

// HandleChat handles POST /chat-proxy requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	fields, perr := h.decodeObject(w, r)
	if perr != nil {
		h.writeError(w, r, perr)
		return
	}

	req := wire.ChatRequest{
		Query:     stringField(fields, "query"),
		SessionID: stringField(fields, "sessionId"),
	}
	reply, err := h.svc.Chat(r.Context(), req)
	if err != nil {
		h.writeError(w, r, AsError(err))
		return
	}
	api.JSON(w, http.StatusOK, reply)
}

// HandleFeedback handles POST /feedback-proxy requests.
func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	fields, perr := h.decodeObject(w, r)
	if perr != nil {
		h.writeError(w, r, perr)
		return
	}

	req := wire.FeedbackRequest{
		ResponseID: stringField(fields, "response_id"),
		SessionID:  stringField(fields, "sessionId"),
		Rating:     wire.Rating(stringField(fields, "rating")),
	}
	if raw, ok := fields["comment"]; ok && !isNull(raw) {
		var comment string
		if err := json.Unmarshal(raw, &comment); err != nil {
			h.writeError(w, r, validationError(`Invalid "comment" (string).`))
			return
		}
		req.Comment = &comment
	}

	ack, err := h.svc.Feedback(r.Context(), req)
	if err != nil {
		h.writeError(w, r, AsError(err))
		return
	}
	api.JSON(w, http.StatusOK, ack)
}

// decodeObject reads the body as a JSON object, keeping field values raw so
// each one can be type-checked on its own.
func (h *Handler) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, *Error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, bodyTooLargeError(err)
		}
		return nil, validationError("Invalid request body.")
	}
	if fields == nil {
		return nil, validationError("Invalid request body.")
	}
	return fields, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, perr *Error) {
	if perr.Kind == KindInternal || perr.Kind == KindConfiguration {
		h.svc.logger.Error("Proxy request failed",
			"kind", perr.Kind.String(),
			"path", r.URL.Path,
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"error", perr,
		)
	}
	api.JSON(w, perr.Status, perr.Envelope)
}

// stringField returns the named field when it is a JSON string, "" otherwise.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
