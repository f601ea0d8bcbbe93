package wire

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingValid(t *testing.T) {
	assert.True(t, RatingUp.Valid())
	assert.True(t, RatingDown.Valid())
	assert.False(t, Rating("maybe").Valid())
	assert.False(t, Rating("").Valid())
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		env  ErrorEnvelope
		want string
	}{
		{"empty", ErrorEnvelope{}, "Request failed"},
		{"status and text body", ErrorEnvelope{Error: "Upstream error", Status: 503, Body: "overloaded"}, "Upstream error (503) — overloaded"},
		{"object body", ErrorEnvelope{Error: "Unexpected upstream response format", Body: map[string]any{"message": "hi"}}, `Unexpected upstream response format — {"message":"hi"}`},
		{"details", ErrorEnvelope{Error: "Internal error", Details: "dial tcp: refused"}, "Internal error — dial tcp: refused"},
		{"http status ignored", ErrorEnvelope{Error: `Missing "query" (string).`, HTTPStatus: 400}, `Missing "query" (string).`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.env.Describe())
		})
	}
}

func TestEnvelopeFromWrappedError(t *testing.T) {
	env := &ErrorEnvelope{Error: "Upstream feedback error", Status: 502}
	err := fmt.Errorf("send feedback: %w", env.AsError())

	got, ok := EnvelopeFrom(err)
	require.True(t, ok)
	assert.Same(t, env, got)
	assert.Contains(t, err.Error(), "Upstream feedback error (502)")

	_, ok = EnvelopeFrom(errors.New("plain"))
	assert.False(t, ok)
}
