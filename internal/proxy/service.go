// Package proxy implements the two stateless boundary operations that sit
// between the browser and the upstream assistant: chat and feedback.
package proxy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/ace-chat/internal/config"
	"github.com/ashureev/ace-chat/internal/identity"
	"github.com/ashureev/ace-chat/internal/upstream"
	"github.com/ashureev/ace-chat/internal/wire"
)

// Poster sends one JSON request upstream.
type Poster interface {
	PostJSON(ctx context.Context, url string, payload any) (*upstream.Response, error)
}

// Service validates, forwards, and normalizes proxy calls. It holds only
// configuration captured at construction, so calls are independent.
type Service struct {
	chatURL     string
	feedbackURL string
	poster      Poster
	logger      *slog.Logger
}

// NewService creates a proxy service bound to the configured endpoints.
func NewService(cfg *config.Config, poster Poster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chatURL:     cfg.ChatAPIURL,
		feedbackURL: cfg.FeedbackAPIURL,
		poster:      poster,
		logger:      logger.With("component", "proxy"),
	}
}

// ValidateChat checks a chat request before anything is forwarded.
func ValidateChat(req wire.ChatRequest) error {
	if req.Query == "" {
		return validationError(`Missing "query" (string).`)
	}
	if req.SessionID == "" {
		return validationError(`Missing "sessionId" (string).`)
	}
	return nil
}

// ValidateFeedback checks a feedback request before anything is forwarded.
func ValidateFeedback(req wire.FeedbackRequest) error {
	if req.ResponseID == "" {
		return validationError(`Missing "response_id" (string).`)
	}
	if req.SessionID == "" {
		return validationError(`Missing "sessionId" (string).`)
	}
	if !req.Rating.Valid() {
		return validationError(`Invalid "rating" (use "thumbs_up" | "thumbs_down").`)
	}
	return nil
}

// Chat forwards a query upstream and returns the normalized reply.
// Failures are always *Error.
func (s *Service) Chat(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error) {
	if err := ValidateChat(req); err != nil {
		return nil, err
	}
	start := time.Now()
	log := s.logger.With(
		"session_id", req.SessionID,
		"query_length", len(req.Query),
	)
	if !identity.Valid(req.SessionID) {
		log.Debug("Forwarding unusual session id verbatim")
	}

	resp, err := s.poster.PostJSON(ctx, s.chatURL, req)
	if err != nil {
		log.Error("Upstream chat call failed", "error", err, "duration", time.Since(start))
		return nil, internalError(err)
	}
	if !resp.OK() {
		log.Warn("Upstream chat error", "status", resp.Status, "duration", time.Since(start))
		return nil, upstreamError("Upstream error", resp)
	}

	out := upstream.DecodeChat(resp.Body)
	switch out.Kind {
	case upstream.OutcomeParseError:
		log.Warn("Upstream chat returned invalid JSON", "body_length", len(resp.Body))
		return nil, malformedError("Invalid JSON from upstream", resp.Text())
	case upstream.OutcomeShapeError:
		log.Warn("Upstream chat returned unexpected shape")
		return nil, malformedError("Unexpected upstream response format", out.Value)
	}

	log.Info("Chat proxied",
		"response_id", out.Chat.ResponseID,
		"message_length", len(out.Chat.Message),
		"duration", time.Since(start),
	)
	reply := out.Chat
	return &reply, nil
}

// Feedback forwards a rating upstream. A 2xx reply always succeeds; its
// body is merged into the acknowledgement when it is a JSON object.
func (s *Service) Feedback(ctx context.Context, req wire.FeedbackRequest) (map[string]any, error) {
	if err := ValidateFeedback(req); err != nil {
		return nil, err
	}
	if s.feedbackURL == "" {
		return nil, configurationError("Feedback URL not configured")
	}
	start := time.Now()
	log := s.logger.With(
		"session_id", req.SessionID,
		"response_id", req.ResponseID,
		"rating", req.Rating,
		"has_comment", req.Comment != nil && strings.TrimSpace(*req.Comment) != "",
	)

	resp, err := s.poster.PostJSON(ctx, s.feedbackURL, req)
	if err != nil {
		log.Error("Upstream feedback call failed", "error", err, "duration", time.Since(start))
		return nil, internalError(err)
	}
	if !resp.OK() {
		log.Warn("Upstream feedback error", "status", resp.Status, "duration", time.Since(start))
		return nil, upstreamError("Upstream feedback error", resp)
	}

	ack := map[string]any{"ok": true}
	out := upstream.Decode(resp.Body)
	switch {
	case out.Kind != upstream.OutcomeOK:
		ack["body"] = resp.Text()
	default:
		if obj, ok := out.Object(); ok {
			for k, v := range obj {
				ack[k] = v
			}
		} else {
			ack["body"] = out.Value
		}
	}

	log.Info("Feedback proxied", "status", resp.Status, "duration", time.Since(start))
	return ack, nil
}
