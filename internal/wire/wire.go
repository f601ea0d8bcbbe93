// Package wire defines the JSON shapes exchanged between the browser,
// the proxy endpoints, and the upstream chat service.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Rating is a thumbs rating attached to an assistant reply.
type Rating string

const (
	// RatingUp marks a reply as helpful.
	RatingUp Rating = "thumbs_up"
	// RatingDown marks a reply as unhelpful.
	RatingDown Rating = "thumbs_down"
)

// Valid reports whether r is one of the accepted ratings.
func (r Rating) Valid() bool {
	return r == RatingUp || r == RatingDown
}

// ChatRequest is the body of POST /chat-proxy and of the upstream chat call.
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

// ChatReply is the only shape returned to the client on chat success.
type ChatReply struct {
	ResponseID string `json:"response_id"`
	Message    string `json:"message"`
}

// FeedbackRequest is the body of POST /feedback-proxy and of the upstream feedback call.
type FeedbackRequest struct {
	ResponseID string  `json:"response_id"`
	SessionID  string  `json:"sessionId"`
	Rating     Rating  `json:"rating"`
	Comment    *string `json:"comment,omitempty"`
}

// ErrorEnvelope is the canonical failure body returned by both proxy endpoints.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Body    any    `json:"body,omitempty"`
	Details string `json:"details,omitempty"`

	// HTTPStatus is the status the envelope arrived with. Set by clients only.
	HTTPStatus int `json:"-"`
}

// Describe renders the envelope as a single human-readable line,
// e.g. `Upstream error (503) — overloaded`.
func (e *ErrorEnvelope) Describe() string {
	var b strings.Builder
	msg := e.Error
	if msg == "" {
		msg = "Request failed"
	}
	b.WriteString(msg)

	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}

	switch {
	case e.Body != nil:
		b.WriteString(" — ")
		b.WriteString(bodyText(e.Body))
	case e.Details != "":
		b.WriteString(" — ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// AsError returns the envelope as an error value.
func (e *ErrorEnvelope) AsError() error {
	return envelopeError{e}
}

// EnvelopeFrom extracts the envelope from an error produced by AsError.
func EnvelopeFrom(err error) (*ErrorEnvelope, bool) {
	var ee envelopeError
	if !errors.As(err, &ee) {
		return nil, false
	}
	return ee.env, true
}

type envelopeError struct {
	env *ErrorEnvelope
}

func (e envelopeError) Error() string { return e.env.Describe() }

func bodyText(body any) string {
	if s, ok := body.(string); ok {
		return s
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(data)
}
