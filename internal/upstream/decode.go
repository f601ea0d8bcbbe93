package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/ashureev/ace-chat/internal/wire"
)

// OutcomeKind tags the result of decoding an untrusted upstream body.
type OutcomeKind int

const (
	// OutcomeOK means the body decoded (and, for chat, matched the envelope).
	OutcomeOK OutcomeKind = iota
	// OutcomeParseError means the body is not valid JSON.
	OutcomeParseError
	// OutcomeShapeError means the body is JSON of the wrong shape.
	OutcomeShapeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeParseError:
		return "parse_error"
	case OutcomeShapeError:
		return "shape_error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of decoding an upstream body.
type Outcome struct {
	Kind OutcomeKind
	// Value holds the decoded JSON for OutcomeOK and OutcomeShapeError.
	Value any
	// Chat is populated only by DecodeChat on OutcomeOK.
	Chat wire.ChatReply
}

// Object returns Value as a JSON object, if it is one.
func (o Outcome) Object() (map[string]any, bool) {
	m, ok := o.Value.(map[string]any)
	return m, ok
}

// Decode parses raw as a single JSON value. Numbers are kept as json.Number
// so they round-trip to the client unchanged.
func Decode(raw []byte) Outcome {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Outcome{Kind: OutcomeParseError}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Outcome{Kind: OutcomeParseError}
	}
	return Outcome{Kind: OutcomeOK, Value: v}
}

// DecodeChat parses raw and checks it carries a string message and a
// string response_id.
func DecodeChat(raw []byte) Outcome {
	out := Decode(raw)
	if out.Kind != OutcomeOK {
		return out
	}

	obj, ok := out.Object()
	if !ok {
		return Outcome{Kind: OutcomeShapeError, Value: out.Value}
	}
	message, okMsg := obj["message"].(string)
	responseID, okID := obj["response_id"].(string)
	if !okMsg || !okID {
		return Outcome{Kind: OutcomeShapeError, Value: out.Value}
	}

	out.Chat = wire.ChatReply{ResponseID: responseID, Message: message}
	return out
}
