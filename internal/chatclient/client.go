// Package chatclient calls a running proxy the way the chat page does and
// satisfies conversation.Backend.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/ace-chat/internal/wire"
)

const (
	// ChatPath is the proxy chat endpoint.
	ChatPath = "/chat-proxy"
	// FeedbackPath is the proxy feedback endpoint.
	FeedbackPath = "/feedback-proxy"

	maxResponseSize = 4 << 20
)

// Client talks to the proxy over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the proxy at baseURL. A zero timeout leaves
// deadlines to the caller's context.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatResponse struct {
	ResponseID string `json:"response_id"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Status     int    `json:"status"`
	Body       any    `json:"body"`
	Details    string `json:"details"`
}

func (r *chatResponse) envelope(httpStatus int) *wire.ErrorEnvelope {
	return &wire.ErrorEnvelope{
		Error:      r.Error,
		Status:     r.Status,
		Body:       r.Body,
		Details:    r.Details,
		HTTPStatus: httpStatus,
	}
}

// Chat sends a query. Proxy failures come back as envelope errors
// (see wire.EnvelopeFrom); transport failures as plain errors.
func (c *Client) Chat(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error) {
	status, body, err := c.post(ctx, ChatPath, req)
	if err != nil {
		return nil, err
	}

	var data chatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("bad JSON from %s (status %d)", ChatPath, status)
	}
	if !isSuccess(status) || data.Error != "" {
		return nil, data.envelope(status).AsError()
	}
	return &wire.ChatReply{ResponseID: data.ResponseID, Message: data.Message}, nil
}

// Feedback sends a rating. Any non-2xx reply or error field is a failure;
// an unreadable success body is not.
func (c *Client) Feedback(ctx context.Context, req wire.FeedbackRequest) error {
	status, body, err := c.post(ctx, FeedbackPath, req)
	if err != nil {
		return err
	}

	var data chatResponse
	_ = json.Unmarshal(body, &data)
	if isSuccess(status) && data.Error == "" {
		return nil
	}
	env := data.envelope(status)
	if env.Error == "" {
		env.Error = "Feedback failed"
	}
	env.Status = status
	env.Details = ""
	return env.AsError()
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
