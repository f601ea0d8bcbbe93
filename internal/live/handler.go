package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/ace-chat/internal/api"
	"github.com/ashureev/ace-chat/internal/conversation"
	"github.com/ashureev/ace-chat/internal/proxy"
	"github.com/ashureev/ace-chat/internal/wire"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Proxy is the pair of proxy operations a live conversation calls in-process.
type Proxy interface {
	Chat(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error)
	Feedback(ctx context.Context, req wire.FeedbackRequest) (map[string]any, error)
}

// Handler upgrades /ws/chat requests and runs one conversation per connection.
type Handler struct {
	proxy          Proxy
	registry       *Registry
	allowedOrigins []string
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a new live conversation handler.
func NewHandler(p Proxy, registry *Registry, allowedOrigins []string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		proxy:          p,
		registry:       registry,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		logger:         logger.With("component", "live"),
	}
}

type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type serverFrame struct {
	Type  string                 `json:"type"`
	State *conversation.Snapshot `json:"state,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		api.Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state := conversation.New(&localBackend{proxy: h.proxy}, conversation.WithLogger(h.logger))
	defer state.Close()
	sessionID := state.SessionID()
	log := h.logger.With("session_id", sessionID)
	log.Info("Conversation connected", "ip", r.RemoteAddr)

	h.registry.Register(sessionID, ws)
	defer h.registry.Unregister(sessionID, ws)

	// Listeners only mark the state dirty; the push loop coalesces changes so
	// a slow client never blocks the conversation.
	dirty := make(chan struct{}, 1)
	dirty <- struct{}{}
	unsubscribe := state.Subscribe(func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.pushLoop(ctx, ws, state, dirty)
	}()

	h.readLoop(ctx, ws, state, &wg, log)
	cancel()
	state.Close()
	wg.Wait()
	log.Info("Conversation ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) pushLoop(ctx context.Context, ws *websocket.Conn, state *conversation.State, dirty <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirty:
			snap := state.Snapshot()
			if err := wsjson.Write(ctx, ws, serverFrame{Type: "state", State: &snap}); err != nil {
				if ctx.Err() == nil {
					h.logger.Debug("WebSocket write error", "error", err)
				}
				return
			}
		}
	}
}

// readLoop dispatches client frames until the connection closes. Submissions
// run in their own goroutines; the conversation drops overlapping ones.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, state *conversation.State, wg *sync.WaitGroup, log *slog.Logger) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg clientFrame
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug("Ignoring malformed frame", "error", err)
			continue
		}

		switch msg.Type {
		case "query":
			wg.Add(1)
			go func() {
				defer wg.Done()
				state.SubmitQuery(ctx, msg.Content)
			}()
		case "rating":
			wg.Add(1)
			go func() {
				defer wg.Done()
				state.SubmitRating(ctx, wire.Rating(msg.Content))
			}()
		case "dismiss_note":
			state.DismissNote()
		case "ping":
			if err := wsjson.Write(ctx, ws, serverFrame{Type: "pong"}); err != nil {
				log.Debug("Failed to send pong", "error", err)
			}
		default:
			log.Debug("Ignoring unknown frame", "type", msg.Type)
		}
	}
}

// localBackend runs conversation calls against the proxy service directly,
// handing failures back in the same envelope shape the HTTP endpoints write.
type localBackend struct {
	proxy Proxy
}

func (b *localBackend) Chat(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error) {
	reply, err := b.proxy.Chat(ctx, req)
	if err != nil {
		return nil, envelopeError(err)
	}
	return reply, nil
}

func (b *localBackend) Feedback(ctx context.Context, req wire.FeedbackRequest) error {
	if _, err := b.proxy.Feedback(ctx, req); err != nil {
		perr := proxy.AsError(err)
		env := perr.Envelope
		env.HTTPStatus = perr.Status
		// Feedback failures always report the response status, never details.
		env.Status = perr.Status
		env.Details = ""
		return env.AsError()
	}
	return nil
}

func envelopeError(err error) error {
	perr := proxy.AsError(err)
	env := perr.Envelope
	env.HTTPStatus = perr.Status
	return env.AsError()
}
