package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/ace-chat/internal/upstream"
	"github.com/ashureev/ace-chat/internal/wire"
)

// Kind classifies proxy failures.
type Kind int

const (
	// KindValidation is malformed caller input. Nothing is forwarded.
	KindValidation Kind = iota + 1
	// KindUpstream is a reachable upstream answering non-2xx.
	KindUpstream
	// KindUpstreamMalformed is a 2xx upstream body that cannot be used.
	KindUpstreamMalformed
	// KindConfiguration is a missing upstream endpoint. Nothing is forwarded.
	KindConfiguration
	// KindInternal is everything else, network failures included.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindUpstreamMalformed:
		return "upstream_malformed"
	case KindConfiguration:
		return "configuration"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries the HTTP status and the envelope a handler writes back.
type Error struct {
	Kind     Kind
	Status   int
	Envelope wire.ErrorEnvelope
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Envelope.Error)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Envelope.Error, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// AsError converts any error into a proxy error, treating unknown errors as internal.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return internalError(err)
}

func validationError(message string) *Error {
	return &Error{
		Kind:     KindValidation,
		Status:   http.StatusBadRequest,
		Envelope: wire.ErrorEnvelope{Error: message},
	}
}

func bodyTooLargeError(err error) *Error {
	return &Error{
		Kind:     KindValidation,
		Status:   http.StatusRequestEntityTooLarge,
		Envelope: wire.ErrorEnvelope{Error: "Request body too large."},
		Err:      err,
	}
}

func upstreamError(label string, resp *upstream.Response) *Error {
	return &Error{
		Kind:   KindUpstream,
		Status: resp.Status,
		Envelope: wire.ErrorEnvelope{
			Error:  label,
			Status: resp.Status,
			Body:   resp.Text(),
		},
	}
}

func malformedError(message string, body any) *Error {
	return &Error{
		Kind:     KindUpstreamMalformed,
		Status:   http.StatusBadGateway,
		Envelope: wire.ErrorEnvelope{Error: message, Body: body},
	}
}

func configurationError(message string) *Error {
	return &Error{
		Kind:     KindConfiguration,
		Status:   http.StatusInternalServerError,
		Envelope: wire.ErrorEnvelope{Error: message},
	}
}

func internalError(err error) *Error {
	details := "unknown error"
	if err != nil {
		details = err.Error()
	}
	return &Error{
		Kind:     KindInternal,
		Status:   http.StatusInternalServerError,
		Envelope: wire.ErrorEnvelope{Error: "Internal error", Details: details},
		Err:      err,
	}
}
